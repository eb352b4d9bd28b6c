// Package resolver decides how a catalog title relates to the library and the
// request queue.
//
// Resolver answers AVAILABLE when Emby holds the title, the upper-cased request
// status when someone asked for it, and UNKNOWN otherwise. Items are resolved in
// parallel with order preserved. IDChain works in the other direction, mapping an
// Emby item back to a TMDB id through provider ids, an Imdb cross reference and
// finally a title search.
package resolver
