// Package annotation describes the dataset declarations of a test suite and
// discovers them.
//
// Declarations are plain records. They are either built in code with Static
// or read from a YAML file next to the suite's datasets:
//
//	# testdata/PersonSuite.dsunit.yaml
//	setup:
//	  - locations: [person.yaml]
//	teardown:
//	  - type: delete-all
//	    locations: [person.yaml]
//	tests:
//	  TestRename:
//	    expected:
//	      - location: person-renamed.yaml
//	        mode: non-strict
//
// Suite-level declarations always come before test-level ones, and each level
// forms its own setup or teardown group.
package annotation
