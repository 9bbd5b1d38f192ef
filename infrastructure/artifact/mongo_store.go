package artifact

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// MongoConfig holds connection settings for the artifact database.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

// DefaultMongoConfig returns settings for a local instance.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "breach_analytics",
		Collection:     "model_artifacts",
		ConnectTimeout: 5 * time.Second,
		QueryTimeout:   15 * time.Second,
	}
}

// Validate checks the connection settings.
func (c MongoConfig) Validate() error {
	if c.URI == "" {
		return entity.NewValidationError("mongo.uri", "connection uri is required")
	}
	if c.Database == "" {
		return entity.NewValidationError("mongo.database", "database name is required")
	}
	if c.Collection == "" {
		return entity.NewValidationError("mongo.collection", "collection name is required")
	}
	return nil
}

// ConnectMongo dials the configured deployment and verifies it with a
// ping.
func ConnectMongo(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*mongo.Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping mongodb")
	}

	logger.Info("mongodb connection established", zap.String("database", cfg.Database))
	return client.Database(cfg.Database), nil
}

// MongoStore keeps one artifact document per model, replaced on save.
// The full encoded envelope is stored as a binary blob next to queryable
// provenance fields.
type MongoStore struct {
	collection *mongo.Collection
	cfg        MongoConfig
	logger     *zap.Logger
}

// NewMongoStore wraps an established database handle and ensures the
// model-name index exists.
func NewMongoStore(db *mongo.Database, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &MongoStore{
		collection: db.Collection(cfg.Collection),
		cfg:        cfg,
		logger:     logger.Named("artifact_mongo"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	_, err := store.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "model_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create artifact index")
	}
	return store, nil
}

type artifactDocument struct {
	ModelName     string    `bson:"model_name"`
	SchemaVersion int       `bson:"schema_version"`
	RunID         string    `bson:"run_id"`
	TrainedAt     time.Time `bson:"trained_at"`
	Data          []byte    `bson:"data"`
}

// Save upserts the envelope for its model.
func (s *MongoStore) Save(ctx context.Context, env Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	doc := artifactDocument{
		ModelName:     env.ModelName,
		SchemaVersion: env.SchemaVersion,
		RunID:         env.RunID,
		TrainedAt:     env.TrainedAt,
		Data:          data,
	}
	_, err = s.collection.ReplaceOne(ctx,
		bson.M{"model_name": env.ModelName},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "failed to upsert artifact")
	}

	s.logger.Info("artifact saved",
		zap.String("model", env.ModelName),
		zap.String("run_id", env.RunID),
		zap.Int("bytes", len(data)))
	return nil
}

// Load reads the stored envelope for a model. The caller verifies it.
func (s *MongoStore) Load(ctx context.Context, modelName string) (Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	var doc artifactDocument
	err := s.collection.FindOne(ctx, bson.M{"model_name": modelName}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Envelope{}, errors.Wrapf(ErrNotFound, "model %s", modelName)
		}
		return Envelope{}, errors.Wrap(err, "failed to load artifact")
	}
	return Decode(doc.Data)
}
