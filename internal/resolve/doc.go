// Package resolve finds the database connections, dataset loader and
// operation lookup of a test, from explicit configuration and from the
// fields of the test instance.
//
// Fields are matched by type: database.Connection, *sql.DB, *gorm.DB,
// dataset.Loader and operation.Lookup. The connection name is the value of
// the `dsunit` tag, or the field name when the tag is absent:
//
//	type OrderSuite struct {
//		db     *sql.DB  `dsunit:"orders"`
//		legacy *gorm.DB // named "legacy"
//		cache  *sql.DB  `dsunit:"-"`
//	}
package resolve
