// Package runstore persists run, set, and bundle history in SQLite so past
// backups can be inspected and interrupted runs diagnosed.
package runstore
