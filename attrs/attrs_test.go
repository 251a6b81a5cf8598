package attrs_test

import (
	"testing"

	"github.com/pouchdb/pouchbase/attrs"
	"github.com/stretchr/testify/require"
)

func TestMergeKeepsExistingKeys(t *testing.T) {
	bag := attrs.Attributes{"a": 1}
	bag.Merge(attrs.Attributes{"b": 2})
	require.Equal(t, attrs.Attributes{"a": 1, "b": 2}, bag)
}

func TestMergeOverwritesSameKey(t *testing.T) {
	bag := attrs.Attributes{"colour": "red"}
	bag.Merge(attrs.Attributes{"colour": "blue"})
	require.Equal(t, "blue", bag["colour"])
}

func TestMergeDropsReservedKeys(t *testing.T) {
	bag := attrs.Attributes{}
	bag.Merge(attrs.Attributes{"_rev": "1-abc", "_id": "x", "name": "dale"})
	require.Equal(t, attrs.Attributes{"name": "dale"}, bag)
}

func TestPublicStripsReservedKeys(t *testing.T) {
	bag := attrs.Attributes{"_internal": true, "visible": "yes"}
	require.Equal(t, attrs.Attributes{"visible": "yes"}, bag.Public())
}

func TestString(t *testing.T) {
	bag := attrs.Attributes{"email": "dale@x.com", "count": 3}
	require.Equal(t, "dale@x.com", bag.String("email"))
	require.Equal(t, "", bag.String("count"))
	require.Equal(t, "", bag.String("missing"))
}
