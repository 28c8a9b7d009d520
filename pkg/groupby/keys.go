package groupby

import "github.com/lukemarshall2222/netquery/pkg/record"

// SingleGroup is the pre-supplied key-extractor that places every
// record in one group (the empty key record).
func SingleGroup(_ record.Record) record.Record {
	return record.New()
}

// FilterGroups returns a key-extractor that restricts a record to the
// listed field names. Keys absent from the input are silently absent
// from the output key (no error), matching spec §4.4.
func FilterGroups(keys ...string) KeyFn {
	return func(r record.Record) record.Record {
		return r.Restrict(keys...)
	}
}
