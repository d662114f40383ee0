// Package store persists conversations and audit logs in MongoDB. A
// conversation document is keyed by (user_id, session_id) and holds the full
// message history plus the tool outputs produced by workflow runs.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/salesflow/agent/convo"
)

const (
	defaultDatabase                = "ai-sdr"
	defaultConversationsCollection = "conversations"
	defaultLLMLogCollection        = "llm_requests"
	defaultCRMLogCollection        = "crm_requests"
	defaultOpTimeout               = 5 * time.Second
	storeClientName                = "conversation-mongo"
)

type (
	// Store is the Mongo-backed conversation store.
	Store struct {
		mongo         *mongodriver.Client
		conversations *mongodriver.Collection
		llmLog        *mongodriver.Collection
		crmLog        *mongodriver.Collection
		timeout       time.Duration
	}

	// Options configures New.
	Options struct {
		// Client is the connected Mongo client. Required.
		Client *mongodriver.Client
		// Database defaults to "ai-sdr".
		Database string
		// ConversationsCollection defaults to "conversations".
		ConversationsCollection string
		// LLMLogCollection defaults to "llm_requests".
		LLMLogCollection string
		// CRMLogCollection defaults to "crm_requests".
		CRMLogCollection string
		// Timeout bounds each operation. Defaults to 5s.
		Timeout time.Duration
	}

	// SessionSummary is the listing projection of a conversation.
	SessionSummary struct {
		SessionID    string    `bson:"session_id" json:"session_id"`
		Title        string    `bson:"title" json:"title"`
		MessageCount int       `bson:"message_count" json:"message_count"`
		LastUpdated  time.Time `bson:"last_updated" json:"last_updated"`
	}
)

// ErrNotFound reports a conversation that does not exist.
var ErrNotFound = errors.New("conversation not found")

// New builds a Store and ensures its indexes.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("store: mongo client is required")
	}
	db := opts.Database
	if db == "" {
		db = defaultDatabase
	}
	convColl := opts.ConversationsCollection
	if convColl == "" {
		convColl = defaultConversationsCollection
	}
	llmColl := opts.LLMLogCollection
	if llmColl == "" {
		llmColl = defaultLLMLogCollection
	}
	crmColl := opts.CRMLogCollection
	if crmColl == "" {
		crmColl = defaultCRMLogCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	s := &Store{
		mongo:         opts.Client,
		conversations: opts.Client.Database(db).Collection(convColl),
		llmLog:        opts.Client.Database(db).Collection(llmColl),
		crmLog:        opts.Client.Database(db).Collection(crmColl),
		timeout:       timeout,
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Name identifies the store to health checks.
func (s *Store) Name() string {
	return storeClientName
}

// Ping verifies connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// Save upserts the conversation document. LastUpdated and MessageCount are
// recomputed on every save.
func (s *Store) Save(ctx context.Context, sess *convo.Session) error {
	if sess == nil {
		return errors.New("store: session is required")
	}
	if sess.SessionID == "" {
		return errors.New("store: session id is required")
	}
	if sess.UserID == "" {
		return errors.New("store: user id is required")
	}
	now := time.Now().UTC()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	messages := sess.Messages
	if messages == nil {
		messages = []convo.Message{}
	}
	outputs := sess.ToolOutputs
	if outputs == nil {
		outputs = []convo.ToolOutput{}
	}
	title := sess.Title
	if title == "" {
		title = convo.DefaultTitle
	}

	filter := bson.M{"session_id": sess.SessionID, "user_id": sess.UserID}
	update := bson.M{
		"$set": bson.M{
			"messages":      messages,
			"tool_outputs":  outputs,
			"title":         title,
			"model":         sess.Model,
			"message_count": len(messages),
			"last_updated":  now,
		},
		"$setOnInsert": bson.M{
			"session_id": sess.SessionID,
			"user_id":    sess.UserID,
			"created_at": now,
		},
	}
	_, err := s.conversations.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// Load returns the conversation for (userID, sessionID). A missing
// conversation yields a fresh empty session rather than an error, so a new
// chat needs no explicit create step.
func (s *Store) Load(ctx context.Context, userID, sessionID string) (*convo.Session, error) {
	if sessionID == "" {
		return nil, errors.New("store: session id is required")
	}
	if userID == "" {
		return nil, errors.New("store: user id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var sess convo.Session
	err := s.conversations.FindOne(ctx, bson.M{"session_id": sessionID, "user_id": userID}).Decode(&sess)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return &convo.Session{
			SessionID:   sessionID,
			UserID:      userID,
			Title:       convo.DefaultTitle,
			Messages:    []convo.Message{},
			ToolOutputs: []convo.ToolOutput{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if sess.Title == "" {
		sess.Title = convo.DefaultTitle
	}
	if sess.Messages == nil {
		sess.Messages = []convo.Message{}
	}
	if sess.ToolOutputs == nil {
		sess.ToolOutputs = []convo.ToolOutput{}
	}
	return &sess, nil
}

// Delete removes the conversation. Deleting a missing conversation returns
// ErrNotFound.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" || userID == "" {
		return errors.New("store: session id and user id are required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.conversations.DeleteOne(ctx, bson.M{"session_id": sessionID, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns session summaries for a user, most recently updated first.
func (s *Store) List(ctx context.Context, userID string) ([]SessionSummary, error) {
	if userID == "" {
		return nil, errors.New("store: user id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"session_id": 1, "title": 1, "message_count": 1, "last_updated": 1}).
		SetSort(bson.D{{Key: "last_updated", Value: -1}})
	cur, err := s.conversations.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()

	var out []SessionSummary
	for cur.Next(ctx) {
		var doc SessionSummary
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		if doc.Title == "" {
			doc.Title = convo.DefaultTitle
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateTitle sets the conversation title.
func (s *Store) UpdateTitle(ctx context.Context, userID, sessionID, title string) error {
	if sessionID == "" || userID == "" {
		return errors.New("store: session id and user id are required")
	}
	if title == "" {
		return errors.New("store: title is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "user_id": userID},
		bson.M{"$set": bson.M{"title": title, "last_updated": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// LogLLMRequest appends an LLM audit record. Failures are returned but
// callers treat them as non-fatal.
func (s *Store) LogLLMRequest(ctx context.Context, userID, sessionID string, entry any) error {
	return s.logEntry(ctx, s.llmLog, userID, sessionID, entry)
}

// LogCRMRequest appends a CRM audit record.
func (s *Store) LogCRMRequest(ctx context.Context, userID, sessionID string, entry any) error {
	return s.logEntry(ctx, s.crmLog, userID, sessionID, entry)
}

func (s *Store) logEntry(ctx context.Context, coll *mongodriver.Collection, userID, sessionID string, entry any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := coll.InsertOne(ctx, bson.M{
		"user_id":     userID,
		"session_id":  sessionID,
		"entry":       entry,
		"occurred_at": time.Now().UTC(),
	})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	convIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.conversations.Indexes().CreateOne(ctx, convIndex); err != nil {
		return err
	}
	listIndex := mongodriver.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "last_updated", Value: -1}},
	}
	if _, err := s.conversations.Indexes().CreateOne(ctx, listIndex); err != nil {
		return err
	}
	for _, coll := range []*mongodriver.Collection{s.llmLog, s.crmLog} {
		logIndex := mongodriver.IndexModel{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "occurred_at", Value: -1}},
		}
		if _, err := coll.Indexes().CreateOne(ctx, logIndex); err != nil {
			return err
		}
	}
	return nil
}
