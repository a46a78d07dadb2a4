// Package fileutil holds the filesystem primitives shared by every pipeline
// stage.
//
// # Identifiers and hashes
//
// SafeID derives the pseudonymous identifier of a file from its absolute
// path (hex SHA-256 of the cleaned path). It is the key that links scan
// records, classifications, cluster assignments and journal entries without
// exposing the path itself. HashFile computes the content digest recorded in
// the journal; ShortHash produces the 7-character suffix used for versioned
// file names (name__abc1234.ext).
//
// # Artifacts
//
// Every stage persists its output as line-delimited JSON. JSONLWriter streams
// records to disk so the scanner never holds the full tree in memory, and
// ReadJSONL decodes them back one record at a time:
//
//	w, err := fileutil.CreateJSONL[models.ScanRecord](path)
//	...
//	err = fileutil.ReadJSONL(path, func(r models.ScanRecord) error {
//	    return classify(r)
//	})
//
// # Moves
//
// MoveNoClobber relocates a regular file without ever replacing an existing
// destination. It is the only mutating filesystem call the organizer and the
// rollback engine use.
package fileutil
