package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zentiam/leadbot/internal/domain"
	"github.com/zentiam/leadbot/internal/knowledge"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	CollectionSessions = "chat_sessions"
	CollectionChunks   = "knowledge_chunks"
)

// MongoStore implements Repository on MongoDB. Each session is one
// document holding its messages and questions.
type MongoStore struct {
	client   *mongo.Client
	sessions *mongo.Collection
	chunks   *mongo.Collection
	mu       sync.Mutex
}

// NewMongo connects with connection pooling and verifies the server.
func NewMongo(uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	if dbName == "" {
		dbName = "leadbot"
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:   client,
		sessions: db.Collection(CollectionSessions),
		chunks:   db.Collection(CollectionChunks),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	slog.Info("connected to MongoDB", "database", dbName)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "lead_synced", Value: 1}, {Key: "updated_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}
	_, err = s.chunks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "doc_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create chunk indexes: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Create(ctx context.Context) (*domain.ChatSession, error) {
	now := time.Now().UTC()
	session := &domain.ChatSession{
		SessionID:           uuid.NewString(),
		Messages:            []domain.Message{},
		AnsweredQuestions:   []string{},
		UnansweredQuestions: []string{},
		QueryTopics:         []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if _, err := s.sessions.InsertOne(ctx, session); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (s *MongoStore) Get(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	var session domain.ChatSession
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

func (s *MongoStore) updateOne(ctx context.Context, sessionID string, update bson.M) error {
	result, err := s.sessions.UpdateOne(ctx, bson.M{"_id": sessionID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return s.updateOne(ctx, sessionID, bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (s *MongoStore) UpdateContact(ctx context.Context, sessionID string, update domain.Contact) (domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return domain.Contact{}, err
	}
	contact := session.Contact
	if !contact.Merge(update) {
		return contact, nil
	}
	err = s.updateOne(ctx, sessionID, bson.M{"$set": bson.M{
		"contact":        contact,
		"info_collected": contact.InfoCollected(),
		"lead_synced":    false,
		"updated_at":     time.Now().UTC(),
	}})
	if err != nil {
		return domain.Contact{}, fmt.Errorf("update contact: %w", err)
	}
	return contact, nil
}

func (s *MongoStore) AppendQuestion(ctx context.Context, sessionID, text string, answered bool) error {
	field := "unanswered_questions"
	if answered {
		field = "answered_questions"
	}
	return s.updateOne(ctx, sessionID, bson.M{
		"$push": bson.M{field: text},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (s *MongoStore) SetTopics(ctx context.Context, sessionID string, topics []string) error {
	if topics == nil {
		topics = []string{}
	}
	return s.updateOne(ctx, sessionID, bson.M{"$set": bson.M{
		"query_topics": topics,
		"updated_at":   time.Now().UTC(),
	}})
}

func (s *MongoStore) List(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"messages.0": bson.M{"$exists": true}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.M{
			"session_id":     "$_id",
			"name":           "$contact.name",
			"email":          "$contact.email",
			"message_count":  bson.M{"$size": "$messages"},
			"info_collected": 1,
			"lead_synced":    1,
			"created_at":     1,
			"updated_at":     1,
		}}},
	}
	cursor, err := s.sessions.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		SessionID     string    `bson:"session_id"`
		Name          string    `bson:"name"`
		Email         string    `bson:"email"`
		MessageCount  int       `bson:"message_count"`
		InfoCollected bool      `bson:"info_collected"`
		LeadSynced    bool      `bson:"lead_synced"`
		CreatedAt     time.Time `bson:"created_at"`
		UpdatedAt     time.Time `bson:"updated_at"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	out := make([]domain.SessionSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.SessionSummary(r))
	}
	return out, nil
}

func (s *MongoStore) ListUnsyncedLeads(ctx context.Context, limit int) ([]*domain.ChatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	filter := bson.M{
		"lead_synced":   false,
		"contact.name":  bson.M{"$nin": bson.A{"", nil}},
		"contact.email": bson.M{"$nin": bson.A{"", nil}},
	}
	cursor, err := s.sessions.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("find unsynced leads: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.ChatSession
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode unsynced leads: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Counts(ctx context.Context) (domain.Counts, error) {
	lead := bson.M{
		"contact.name":  bson.M{"$nin": bson.A{"", nil}},
		"contact.email": bson.M{"$nin": bson.A{"", nil}},
	}
	unsynced := bson.M{"lead_synced": false}
	for k, v := range lead {
		unsynced[k] = v
	}

	var c domain.Counts
	for _, q := range []struct {
		filter bson.M
		dst    *int64
	}{
		{bson.M{}, &c.Sessions},
		{bson.M{"messages.0": bson.M{"$exists": true}}, &c.Conversations},
		{lead, &c.Leads},
		{bson.M{"info_collected": true}, &c.InfoCollected},
		{unsynced, &c.UnsyncedLeads},
	} {
		n, err := s.sessions.CountDocuments(ctx, q.filter)
		if err != nil {
			return domain.Counts{}, fmt.Errorf("count sessions: %w", err)
		}
		*q.dst = n
	}
	return c, nil
}

func (s *MongoStore) MarkLeadSynced(ctx context.Context, sessionID string, at time.Time) error {
	return s.updateOne(ctx, sessionID, bson.M{"$set": bson.M{
		"lead_synced":    true,
		"lead_synced_at": at.UTC(),
		"updated_at":     time.Now().UTC(),
	}})
}

func (s *MongoStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.sessions.DeleteMany(ctx, bson.M{"updated_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("delete old sessions: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *MongoStore) SaveChunks(ctx context.Context, docID string, chunks []knowledge.Chunk) error {
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"doc_id": docID}); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(chunks))
	for _, c := range chunks {
		c.DocID = docID
		docs = append(docs, c)
	}
	if _, err := s.chunks.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteChunks(ctx context.Context, docID string) error {
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"doc_id": docID}); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *MongoStore) LoadChunks(ctx context.Context) ([]knowledge.Chunk, error) {
	cursor, err := s.chunks.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find chunks: %w", err)
	}
	defer cursor.Close(ctx)

	var out []knowledge.Chunk
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode chunks: %w", err)
	}
	return out, nil
}
