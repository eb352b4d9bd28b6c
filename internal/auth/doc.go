// Package auth handles login through Emby and bearer-token access control.
package auth
