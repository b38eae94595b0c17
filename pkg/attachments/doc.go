// Package attachments converts CLI-friendly attachment specifiers into upload
// descriptors for the form relay client, inferring MIME types and validating
// that each path names a readable regular file.
package attachments
