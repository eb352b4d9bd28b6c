// Command embysub is the operator CLI for the Emby subscription manager.
//
// It reads the same configuration as embysubd and works directly against the
// SQLite request store, so listing and moderating requests does not need the
// daemon to be running. start, stop and status manage the daemon process
// through its pid and lock files.
package main
