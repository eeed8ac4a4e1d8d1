// Package mongo implements store.Store on MongoDB, keeping accounts and posts
// in two collections and expanding post authors with a $lookup stage.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	DefaultDatabase    = "inkpost"
	accountsCollection = "users"
	postsCollection    = "posts"
)

type Options struct {
	MaxPoolSize uint64
}

type Store struct {
	client   *mongo.Client
	accounts *mongo.Collection
	posts    *mongo.Collection
}

type accountDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type postDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Title     string             `bson:"title"`
	Summary   string             `bson:"summary"`
	Content   string             `bson:"content"`
	Cover     string             `bson:"cover,omitempty"`
	Category  string             `bson:"category"`
	Slug      string             `bson:"slug"`
	Author    primitive.ObjectID `bson:"author"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`

	// Populated by the $lookup stage only.
	AuthorInfo []authorDoc `bson:"authorInfo,omitempty"`
}

type authorDoc struct {
	ID       primitive.ObjectID `bson:"_id"`
	Username string             `bson:"username"`
}

// Open connects to uri and ensures indexes. The database name comes from the
// URI path, falling back to DefaultDatabase.
func Open(ctx context.Context, uri string, opts Options) (*Store, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = DefaultDatabase
	}

	clientOpts := options.Client().ApplyURI(uri)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client:   client,
		accounts: db.Collection(accountsCollection),
		posts:    db.Collection(postsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create account indexes: %w", err)
	}
	if _, err := s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "author", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("create post indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) CreateAccount(ctx context.Context, account *model.Account) error {
	doc := accountDoc{
		Username:  account.Username,
		Email:     account.Email,
		Password:  account.PasswordHash,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
	if account.ID != "" {
		oid, err := primitive.ObjectIDFromHex(account.ID)
		if err != nil {
			return store.ErrInvalidID
		}
		doc.ID = oid
	} else {
		doc.ID = primitive.NewObjectID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	if _, err := s.accounts.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateUsername
		}
		return err
	}
	account.ID = doc.ID.Hex()
	account.CreatedAt = doc.CreatedAt
	account.UpdatedAt = doc.UpdatedAt
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Account{}, store.ErrInvalidID
	}
	return s.findAccount(ctx, bson.M{"_id": oid})
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (model.Account, error) {
	return s.findAccount(ctx, bson.M{"username": username})
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (model.Account, error) {
	var doc accountDoc
	if err := s.accounts.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Account{}, store.ErrNotFound
		}
		return model.Account{}, err
	}
	return doc.toModel(), nil
}

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	authorID, err := primitive.ObjectIDFromHex(post.Author.ID)
	if err != nil {
		return fmt.Errorf("author: %w", store.ErrInvalidID)
	}
	doc := postDoc{
		Title:     post.Title,
		Summary:   post.Summary,
		Content:   post.Content,
		Cover:     post.Cover,
		Category:  post.Category,
		Slug:      post.Slug,
		Author:    authorID,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
	if post.ID != "" {
		oid, err := primitive.ObjectIDFromHex(post.ID)
		if err != nil {
			return store.ErrInvalidID
		}
		doc.ID = oid
	} else {
		doc.ID = primitive.NewObjectID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if _, err := s.posts.InsertOne(ctx, doc); err != nil {
		return err
	}
	post.ID = doc.ID.Hex()
	post.CreatedAt = doc.CreatedAt
	post.UpdatedAt = doc.UpdatedAt
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Post{}, store.ErrInvalidID
	}
	posts, err := s.aggregatePosts(ctx, bson.M{"_id": oid}, 1)
	if err != nil {
		return model.Post{}, err
	}
	if len(posts) == 0 {
		return model.Post{}, store.ErrNotFound
	}
	return posts[0], nil
}

func (s *Store) ListPosts(ctx context.Context, opts store.PostListOpts) ([]model.Post, error) {
	filter := bson.M{}
	if opts.Category != "" {
		filter["category"] = opts.Category
	}
	return s.aggregatePosts(ctx, filter, store.Limit(opts.Limit))
}

func (s *Store) UpdatePost(ctx context.Context, id string, patch model.PostPatch) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrInvalidID
	}
	if patch.Empty() {
		n, err := s.posts.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	}
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": oid}, updateDocument(patch))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) aggregatePosts(ctx context.Context, match bson.M, limit int) ([]model.Post, error) {
	cur, err := s.posts.Aggregate(ctx, postPipeline(match, limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	posts := make([]model.Post, 0)
	for cur.Next(ctx) {
		var doc postDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		posts = append(posts, doc.toModel())
	}
	return posts, cur.Err()
}

// postPipeline sorts newest first and joins only the author's username.
func postPipeline(match bson.M, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: accountsCollection},
			{Key: "localField", Value: "author"},
			{Key: "foreignField", Value: "_id"},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$project", Value: bson.D{{Key: "username", Value: 1}}}},
			}},
			{Key: "as", Value: "authorInfo"},
		}}},
	}
}

func updateDocument(patch model.PostPatch) bson.M {
	set := bson.M{}
	unset := bson.M{}
	put := func(field string, v *string) {
		if v != nil {
			set[field] = *v
		}
	}
	put("title", patch.Title)
	put("summary", patch.Summary)
	put("content", patch.Content)
	put("category", patch.Category)
	put("slug", patch.Slug)
	if patch.Cover != nil {
		if *patch.Cover == "" {
			unset["cover"] = ""
		} else {
			set["cover"] = *patch.Cover
		}
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	set["updatedAt"] = updatedAt.UTC()

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (d accountDoc) toModel() model.Account {
	return model.Account{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (d postDoc) toModel() model.Post {
	p := model.Post{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		Summary:   d.Summary,
		Content:   d.Content,
		Cover:     d.Cover,
		Category:  d.Category,
		Slug:      d.Slug,
		Author:    model.Author{ID: d.Author.Hex()},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if len(d.AuthorInfo) > 0 {
		p.Author.Username = d.AuthorInfo[0].Username
	}
	return p
}
