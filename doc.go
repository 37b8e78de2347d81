// Package originfs implements a private, quota-tracked storage bucket
// per origin, exposed through File and Directory handles.
//
// Every bucket is a directory on the host; all paths handed to the
// package are resolved relative to that directory and can never escape
// it, including through symlinks. On top of the sandbox the package
// layers storage quota accounting with cached usage scans, staged
// write sessions that become visible atomically on commit, exclusive
// random-access handles, a permission model with pluggable policy, and
// tar.gz export/import of a bucket's tree.
package originfs
