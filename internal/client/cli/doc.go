// Package cli provides the interactive DocKeeper command-line client.
//
// It wires configuration, the local cache, the cloud storage facade, the sync
// engine and the library service behind a small REPL. Typical flow: restore
// the last provider connection, start background sync (and the inbox watcher
// when configured), then execute user commands until exit.
//
// Key features:
//   - Connect / Callback / Disconnect a cloud provider (mock, dropbox, s3, postgres)
//   - Add, list, show, tag and remove documents
//   - Tags and processing settings
//   - Manual sync and staged upload retry
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
