package docstore

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The helpers below evaluate Store semantics over raw BSON documents. They
// back every store that cannot push queries down to a server.

// PrepareInsert encodes doc and makes sure it carries an _id, generating one
// when the document leaves it empty.
func PrepareInsert(doc interface{}) (bson.Raw, primitive.ObjectID, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, primitive.NilObjectID, fmt.Errorf("failed to encode document: %w", err)
	}
	raw := bson.Raw(data)

	if v, err := raw.LookupErr("_id"); err == nil {
		oid, ok := v.ObjectIDOK()
		if !ok {
			return nil, primitive.NilObjectID, fmt.Errorf("unsupported _id type %s", v.Type)
		}
		if !oid.IsZero() {
			return raw, oid, nil
		}
	}

	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, primitive.NilObjectID, fmt.Errorf("failed to decode document: %w", err)
	}

	id := primitive.NewObjectID()
	withID := bson.D{{Key: "_id", Value: id}}
	for _, e := range d {
		if e.Key != "_id" {
			withID = append(withID, e)
		}
	}

	data, err = bson.Marshal(withID)
	if err != nil {
		return nil, primitive.NilObjectID, fmt.Errorf("failed to encode document: %w", err)
	}
	return bson.Raw(data), id, nil
}

type fieldMatch struct {
	key  string
	t    bsontype.Type
	data []byte
}

func compileFilter(filter bson.M) ([]fieldMatch, error) {
	matches := make([]fieldMatch, 0, len(filter))
	for key, val := range filter {
		if strings.HasPrefix(key, "$") {
			return nil, fmt.Errorf("unsupported filter operator %q", key)
		}
		t, data, err := bson.MarshalValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filter field %s: %w", key, err)
		}
		matches = append(matches, fieldMatch{key: key, t: t, data: data})
	}
	return matches, nil
}

func (m fieldMatch) matches(doc bson.Raw) bool {
	v, err := doc.LookupErr(m.key)
	if err != nil {
		return false
	}
	return v.Type == m.t && bytes.Equal(v.Value, m.data)
}

// Query filters docs, which must be in insertion order, then applies the
// sort and limit from opts. Documents that compare equal on every sort key
// keep insertion order.
func Query(docs []bson.Raw, filter bson.M, opts *FindOptions) ([]bson.Raw, error) {
	matchers, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}

	out := make([]bson.Raw, 0, len(docs))
	for _, doc := range docs {
		keep := true
		for _, m := range matchers {
			if !m.matches(doc) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, doc)
		}
	}

	if opts == nil {
		return out, nil
	}

	if len(opts.Sort) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, key := range opts.Sort {
				c := compareField(out[i], out[j], key.Field)
				if c == 0 {
					continue
				}
				if key.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if opts.Limit > 0 && int64(len(out)) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func compareField(a, b bson.Raw, field string) int {
	av, aerr := a.LookupErr(field)
	bv, berr := b.LookupErr(field)
	switch {
	case aerr != nil && berr != nil:
		return 0
	case aerr != nil:
		return -1
	case berr != nil:
		return 1
	}
	return compareValues(av, bv)
}

func compareValues(a, b bson.RawValue) int {
	if an, ok := numeric(a); ok {
		if bn, ok := numeric(b); ok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}

	if a.Type != b.Type {
		return int(a.Type) - int(b.Type)
	}

	switch a.Type {
	case bsontype.DateTime:
		at, bt := a.DateTime(), b.DateTime()
		switch {
		case at < bt:
			return -1
		case at > bt:
			return 1
		}
		return 0
	case bsontype.String:
		return strings.Compare(a.StringValue(), b.StringValue())
	case bsontype.ObjectID:
		ao, bo := a.ObjectID(), b.ObjectID()
		return bytes.Compare(ao[:], bo[:])
	}
	return bytes.Compare(a.Value, b.Value)
}

func numeric(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Int32:
		return float64(v.Int32()), true
	case bsontype.Int64:
		return float64(v.Int64()), true
	case bsontype.Double:
		return v.Double(), true
	}
	return 0, false
}

// DecodeAll decodes docs into results, which must point to a slice.
func DecodeAll(docs []bson.Raw, results interface{}) error {
	rv := reflect.ValueOf(results)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("results must be a pointer to a slice, got %T", results)
	}

	slice := rv.Elem()
	elemType := slice.Type().Elem()
	out := reflect.MakeSlice(slice.Type(), 0, len(docs))
	for _, raw := range docs {
		elem := reflect.New(elemType)
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
		out = reflect.Append(out, elem.Elem())
	}
	slice.Set(out)
	return nil
}

// SetField returns a copy of doc with field set to value.
func SetField(doc bson.Raw, field string, value interface{}) (bson.Raw, error) {
	var d bson.D
	if err := bson.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}

	replaced := false
	for i := range d {
		if d[i].Key == field {
			d[i].Value = value
			replaced = true
			break
		}
	}
	if !replaced {
		d = append(d, bson.E{Key: field, Value: value})
	}

	data, err := bson.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return bson.Raw(data), nil
}

// DocumentID reads the _id of a prepared document.
func DocumentID(doc bson.Raw) (primitive.ObjectID, bool) {
	v, err := doc.LookupErr("_id")
	if err != nil {
		return primitive.NilObjectID, false
	}
	return v.ObjectIDOK()
}
