// Package media builds the catalog views served under /media: trending, search,
// anime, recently added, person, season and title details. Each view takes the
// TMDB payload and annotates it with the library/request status from the
// resolver, plus Emby media info and per-season counts where Emby holds the
// title.
//
// Catalog failures on the trending feed and Emby failures on the latest feed
// degrade to empty lists. Other Emby failures only drop the Emby-derived
// annotations.
package media
