package mongo

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/docq-io/docq/internal/storage"
)

// toFilter converts a filter document to driver form. A top-level "_id"
// holds an ObjectID hex string (or an $in list of them) and is parsed; all
// other values pass through, with nested storage.Doc maps converted
// recursively.
func toFilter(filter storage.Doc) (bson.M, error) {
	out := make(bson.M, len(filter))
	for k, v := range filter {
		if k == "_id" {
			id, err := toIDValue(v)
			if err != nil {
				return nil, err
			}
			out[k] = id
			continue
		}
		out[k] = toValue(v)
	}
	return out, nil
}

func toIDValue(v any) (any, error) {
	switch id := v.(type) {
	case storage.ID:
		return parseObjectID(string(id))
	case string:
		return parseObjectID(id)
	case storage.Doc:
		in, ok := id["$in"]
		if !ok || len(id) != 1 {
			return nil, fmt.Errorf("mongo: unsupported _id filter %v", id)
		}
		list, ok := in.([]storage.ID)
		if !ok {
			return nil, fmt.Errorf("mongo: _id $in wants []storage.ID, got %T", in)
		}
		oids := make([]primitive.ObjectID, 0, len(list))
		for _, s := range list {
			oid, err := parseObjectID(string(s))
			if err != nil {
				return nil, err
			}
			oids = append(oids, oid)
		}
		return bson.M{"$in": oids}, nil
	}
	return nil, fmt.Errorf("mongo: unsupported _id filter type %T", v)
}

func parseObjectID(s string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("mongo: bad document id %q: %w", s, err)
	}
	return oid, nil
}

// toValue converts nested documents and id lists; scalars pass through
// untouched so the driver encodes them natively.
func toValue(v any) any {
	switch d := v.(type) {
	case storage.Doc:
		out := make(bson.M, len(d))
		for k, e := range d {
			out[k] = toValue(e)
		}
		return out
	case map[string]any:
		out := make(bson.M, len(d))
		for k, e := range d {
			out[k] = toValue(e)
		}
		return out
	case []storage.BlobID:
		out := make([]string, 0, len(d))
		for _, id := range d {
			out = append(out, string(id))
		}
		return out
	case []any:
		out := make([]any, 0, len(d))
		for _, e := range d {
			out = append(out, toValue(e))
		}
		return out
	}
	return v
}

// fromDoc converts a decoded driver document back to storage form: the
// ObjectID under "_id" becomes a storage.ID hex string, driver container
// types become plain maps and slices.
func fromDoc(m bson.M) storage.Doc {
	out := make(storage.Doc, len(m))
	for k, v := range m {
		if k == "_id" {
			if oid, ok := v.(primitive.ObjectID); ok {
				out[k] = storage.ID(oid.Hex())
				continue
			}
		}
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v any) any {
	switch d := v.(type) {
	case bson.M:
		out := make(storage.Doc, len(d))
		for k, e := range d {
			out[k] = fromValue(e)
		}
		return out
	case bson.D:
		out := make(storage.Doc, len(d))
		for _, e := range d {
			out[e.Key] = fromValue(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, 0, len(d))
		for _, e := range d {
			out = append(out, fromValue(e))
		}
		return out
	}
	return v
}

// upsertUpdate shapes an UpsertByID document as a $set update, so fields
// the caller leaves out are preserved on the stored document.
func upsertUpdate(doc storage.Doc) bson.M {
	return bson.M{"$set": toValue(doc)}
}

// toSort converts a sort order to the driver's ordered document form.
func toSort(sort []storage.SortField) bson.D {
	out := make(bson.D, 0, len(sort))
	for _, s := range sort {
		dir := 1
		if !s.Ascending {
			dir = -1
		}
		out = append(out, bson.E{Key: s.Field, Value: dir})
	}
	return out
}

// toIndexKeys converts an index key sequence to the driver's ordered form.
func toIndexKeys(keys []storage.IndexKey) bson.D {
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		out = append(out, bson.E{Key: k.Field, Value: k.Direction})
	}
	return out
}
