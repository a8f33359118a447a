// Package dataset provides the in-memory tabular model used for seeding and
// verifying databases, together with the flat file formats it is read from.
//
// # Flat Formats
//
// The same shape is accepted in three encodings. YAML:
//
//	person:
//	  - id: 1
//	    name: Alice
//	  - id: 2
//	    name: Bob
//	audit_log: []
//
// XML, compatible with DBUnit flat XML:
//
//	<dataset>
//	  <person id="1" name="Alice"/>
//	  <person id="2" name="Bob"/>
//	  <audit_log/>
//	</dataset>
//
// and CUE:
//
//	person: [{id: 1, name: "Alice"}, {id: 2, name: "Bob"}]
//	audit_log: []
//
// Tables keep their declaration order, which is the order rows are inserted
// in. Columns keep first-seen order; a column missing from a row is NULL. A
// table declared without rows is kept so that destructive operations still
// clear it.
//
// # Resolution
//
// Locations are resolved relative to the directory of the suite that
// declared them unless they are absolute. An empty location loads nothing
// and is not an error.
package dataset
