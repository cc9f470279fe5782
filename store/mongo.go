// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package store

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/exdb/repoload/container"
	"github.com/exdb/repoload/document"
	"github.com/exdb/repoload/rules"
)

// MongoConfig locates one target database.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Mongo backs Store with a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Store = (*Mongo)(nil)

// OpenMongo connects and pings. Callers close the handle when their
// worker exits.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to document store")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging document store")
	}
	return &Mongo{client: client, db: client.Database(cfg.Database)}, nil
}

// MongoFactory returns a Factory opening an independent connection
// per call.
func MongoFactory(cfg MongoConfig) Factory {
	return func(ctx context.Context) (Store, error) {
		return OpenMongo(ctx, cfg)
	}
}

func (m *Mongo) Insert(ctx context.Context, collection string, doc document.Target) error {
	_, err := m.db.Collection(collection).InsertOne(ctx, bson.M(doc.Content))
	return errors.Wrapf(err, "inserting into %s", collection)
}

func (m *Mongo) Replace(ctx context.Context, collection string, key document.Key, doc document.Target) error {
	opts := mongooptions.Replace().SetUpsert(true)
	_, err := m.db.Collection(collection).ReplaceOne(ctx, exactFilter(key), bson.M(doc.Content), opts)
	return errors.Wrapf(err, "replacing in %s", collection)
}

func (m *Mongo) Purge(ctx context.Context, collection string, key document.Key, regex bool) (int64, error) {
	filter := exactFilter(key)
	if regex {
		filter = regexFilter(key)
	}
	res, err := m.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, errors.Wrapf(err, "purging from %s", collection)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) Fetch(ctx context.Context, collection string, key document.Key) (map[string]interface{}, error) {
	var out bson.M
	err := m.db.Collection(collection).FindOne(ctx, exactFilter(key)).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "fetching from %s", collection)
	}
	delete(out, "_id")
	doc := normalizeValue(map[string]interface{}(out))
	return doc.(map[string]interface{}), nil
}

// normalizeValue rewrites driver-native BSON types into the plain Go
// forms the transformer produces. Datetimes come back as
// primitive.DateTime, whose JSON form renders in the local zone;
// read-back comparison needs UTC instants and plain maps and slices.
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, el := range t {
			out[i] = normalizeValue(el)
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, el := range t {
			out[k] = normalizeValue(el)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, el := range t {
			out[k] = normalizeValue(el)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, el := range t {
			out[i] = normalizeValue(el)
		}
		return out
	default:
		return v
	}
}

func (m *Mongo) Distinct(ctx context.Context, collection, field string) ([]interface{}, error) {
	values, err := m.db.Collection(collection).Distinct(ctx, field, bson.M{})
	if err != nil {
		return nil, errors.Wrapf(err, "distinct %s on %s", field, collection)
	}
	return values, nil
}

func (m *Mongo) CreateCollection(ctx context.Context, collection string) error {
	err := m.db.CreateCollection(ctx, collection)
	// an existing collection is fine
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Name == "NamespaceExists" || cmdErr.Code == 48) {
		return nil
	}
	return errors.Wrapf(err, "creating collection %s", collection)
}

func (m *Mongo) DropCollection(ctx context.Context, collection string) error {
	return errors.Wrapf(m.db.Collection(collection).Drop(ctx), "dropping collection %s", collection)
}

func (m *Mongo) EnsureIndexes(ctx context.Context, collection string, indexes []rules.IndexSpec) error {
	if len(indexes) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		keys := bson.D{}
		for _, field := range idx.Fields {
			keys = append(keys, bson.E{Key: field, Value: 1})
		}
		opts := mongooptions.Index().SetUnique(idx.Unique)
		if idx.Name != "" {
			opts = opts.SetName(idx.Name)
		}
		models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
	}
	_, err := m.db.Collection(collection).Indexes().CreateMany(ctx, models)
	return errors.Wrapf(err, "ensuring indexes on %s", collection)
}

func (m *Mongo) Close(ctx context.Context) error {
	return errors.Wrap(m.client.Disconnect(ctx), "disconnecting from document store")
}

func exactFilter(key document.Key) bson.M {
	filter := make(bson.M, len(key))
	for field, v := range key {
		filter[field] = v
	}
	return filter
}

// regexFilter matches string key values as case-insensitive prefixes,
// the broader purge used by replace loads on stores whose key
// collation folded case.
func regexFilter(key document.Key) bson.M {
	filter := make(bson.M, len(key))
	for field, v := range key {
		filter[field] = primitive.Regex{
			Pattern: "^" + regexp.QuoteMeta(container.ValueString(v)),
			Options: "i",
		}
	}
	return filter
}
