package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"linker_index/internal/config"
	"linker_index/internal/models"
)

type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	webpages *mongo.Collection
	websites *mongo.Collection
	longURLs *mongo.Collection
	timeout  time.Duration
	logger   *zap.Logger
}

func NewMongoDB(config config.DBConfig, logger *zap.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.Connection))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	db := client.Database(config.Database)

	d := &MongoDB{
		client:   client,
		database: db,
		webpages: db.Collection(config.Collections.WebPages),
		websites: db.Collection(config.Collections.Websites),
		longURLs: db.Collection(config.Collections.LongURLs),
		timeout:  time.Duration(config.TimeoutSec) * time.Second,
		logger:   logger,
	}

	d.createIndexes()

	return d, nil
}

// createIndexes logs failures and carries on. The unique url index cannot be
// built while duplicates exist; the duplicate sweep repairs that.
func (d *MongoDB) createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "expandedRefs", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "lastUpdated", Value: -1}},
		},
	}

	for _, idx := range indexes {
		if _, err := d.webpages.Indexes().CreateOne(ctx, idx); err != nil {
			d.logger.Warn("failed to create webpages index",
				zap.Any("keys", idx.Keys), zap.Error(err))
		}
	}
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *MongoDB) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// rejected marks server-side query failures (result too large, memory limits)
// so the serving path can degrade instead of failing.
func rejected(err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %v", models.ErrQueryRejected, err)
	}
	return err
}

func (d *MongoDB) FindByURL(ctx context.Context, url string) (*models.WebPage, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	var page models.WebPage
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	err := d.webpages.FindOne(ctx, bson.M{"url": url}, opts).Decode(&page)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (d *MongoDB) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.WebPage, error) {
	return d.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (d *MongoDB) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]*models.WebPage, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	cursor, err := d.webpages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pages []*models.WebPage
	if err := cursor.All(ctx, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func (d *MongoDB) Insert(ctx context.Context, page *models.WebPage) error {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	page.ID = primitive.NilObjectID
	res, err := d.webpages.InsertOne(ctx, page)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", models.ErrDuplicateURL, page.URL)
	}
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		page.ID = id
	}
	return nil
}

func (d *MongoDB) Replace(ctx context.Context, page *models.WebPage) error {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	res, err := d.webpages.ReplaceOne(ctx, bson.M{"_id": page.ID}, page)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", models.ErrDuplicateURL, page.URL)
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("webpage %s: %w", page.ID.Hex(), models.ErrNotFound)
	}
	return nil
}

func (d *MongoDB) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	_, err := d.webpages.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (d *MongoDB) DeleteMany(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	_, err := d.webpages.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

// ForEach streams every webpage in _id order. It is used by batch sweeps, so
// it runs without the per-operation timeout.
func (d *MongoDB) ForEach(ctx context.Context, fn func(*models.WebPage) error) error {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := d.webpages.Find(ctx, bson.M{}, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var page models.WebPage
		if err := cursor.Decode(&page); err != nil {
			return err
		}
		if err := fn(&page); err != nil {
			return err
		}
	}
	return cursor.Err()
}

func (d *MongoDB) FindByExpandedRefs(ctx context.Context, segments []string) ([]*models.WebPage, error) {
	opts := options.Find().
		SetHint("expandedRefs_1").
		SetSort(bson.D{{Key: "_id", Value: 1}})

	pages, err := d.find(ctx, bson.M{"expandedRefs": bson.M{"$in": segments}}, opts)
	if err != nil {
		return nil, rejected(err)
	}
	return pages, nil
}

func (d *MongoDB) DuplicateURLGroups(ctx context.Context) ([]models.DuplicateGroup, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$url"},
			{Key: "uniqueIds", Value: bson.D{{Key: "$addToSet", Value: "$_id"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$match", Value: bson.D{{Key: "count", Value: bson.D{{Key: "$gt", Value: 1}}}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
	}

	cursor, err := d.webpages.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		URL       string               `bson:"_id"`
		UniqueIDs []primitive.ObjectID `bson:"uniqueIds"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	groups := make([]models.DuplicateGroup, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, models.DuplicateGroup{URL: r.URL, IDs: r.UniqueIDs})
	}
	return groups, nil
}

func (d *MongoDB) QuarantineLongURL(ctx context.Context, page *models.WebPage) error {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	raw := page.Clone()
	raw.ID = primitive.NilObjectID
	_, err := d.longURLs.InsertOne(ctx, raw)
	return err
}

func (d *MongoDB) LatestForDomain(ctx context.Context, domain string) (*models.WebPage, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	filter := bson.M{"url": primitive.Regex{Pattern: regexp.QuoteMeta(domain)}}
	opts := options.FindOne().SetSort(bson.D{{Key: "lastUpdated", Value: -1}})

	var page models.WebPage
	err := d.webpages.FindOne(ctx, filter, opts).Decode(&page)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (d *MongoDB) LoadWebsites(ctx context.Context) ([]models.Website, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	cursor, err := d.websites.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sites []models.Website
	if err := cursor.All(ctx, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

func (d *MongoDB) Ping(ctx context.Context) error {
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	return d.client.Ping(ctx, nil)
}
