package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mernacademy/student-auth/internal/domain"
)

// accountDocument is the stored shape of an account in MongoDB.
type accountDocument struct {
	ID                string     `bson:"_id"`
	Name              string     `bson:"name"`
	Email             string     `bson:"email"`
	PasswordHash      string     `bson:"password"`
	Role              string     `bson:"role"`
	Verified          bool       `bson:"isVerified"`
	VerificationToken *string    `bson:"verificationToken,omitempty"`
	ResetToken        *string    `bson:"resetPasswordToken,omitempty"`
	ResetExpiresAt    *time.Time `bson:"resetPasswordExpire,omitempty"`
	CreatedAt         time.Time  `bson:"createdAt"`
	UpdatedAt         time.Time  `bson:"updatedAt"`
}

func toAccountDocument(acc *domain.Account) accountDocument {
	return accountDocument{
		ID:                acc.ID,
		Name:              acc.Name,
		Email:             domain.NormalizeEmail(acc.Email),
		PasswordHash:      acc.PasswordHash,
		Role:              string(acc.Role),
		Verified:          acc.Verified,
		VerificationToken: acc.VerificationToken,
		ResetToken:        acc.ResetToken,
		ResetExpiresAt:    acc.ResetExpiresAt,
		CreatedAt:         acc.CreatedAt,
		UpdatedAt:         acc.UpdatedAt,
	}
}

func (d accountDocument) toDomain() *domain.Account {
	acc := &domain.Account{
		ID:                d.ID,
		Name:              d.Name,
		Email:             d.Email,
		PasswordHash:      d.PasswordHash,
		Role:              domain.Role(d.Role),
		Verified:          d.Verified,
		VerificationToken: d.VerificationToken,
		ResetToken:        d.ResetToken,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.ResetExpiresAt != nil {
		exp := d.ResetExpiresAt.UTC()
		acc.ResetExpiresAt = &exp
	}
	return acc
}

// accountCollection is the part of *mongo.Collection the repository uses.
type accountCollection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
}

type mongoAccountRepository struct {
	coll accountCollection
	now  func() time.Time
}

// NewMongoAccountRepository returns a MongoDB-backed implementation. Every
// single-use transition is one UpdateOne whose filter carries the expected
// token, so the document-level write is the compare-and-swap.
func NewMongoAccountRepository(coll *mongo.Collection) AccountRepository {
	return newMongoAccountRepository(coll)
}

func newMongoAccountRepository(coll accountCollection) *mongoAccountRepository {
	return &mongoAccountRepository{coll: coll, now: time.Now}
}

// EnsureAccountIndexes creates the unique identity index.
func EnsureAccountIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	now := r.now().UTC()
	account.Email = domain.NormalizeEmail(account.Email)
	account.CreatedAt = now
	account.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, toAccountDocument(account)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *mongoAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: domain.NormalizeEmail(email)}})
}

func (r *mongoAccountRepository) MarkVerified(ctx context.Context, id, token string) error {
	filter := bson.D{{Key: "_id", Value: id}, {Key: "verificationToken", Value: token}}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "isVerified", Value: true}, {Key: "updatedAt", Value: r.now().UTC()}}},
		{Key: "$unset", Value: bson.D{{Key: "verificationToken", Value: ""}}},
	}
	return r.updateOne(ctx, "mark verified", ErrPreconditionFailed, filter, update)
}

func (r *mongoAccountRepository) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	filter := bson.D{{Key: "_id", Value: id}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "resetPasswordToken", Value: token},
		{Key: "resetPasswordExpire", Value: expiresAt.UTC()},
		{Key: "updatedAt", Value: r.now().UTC()},
	}}}
	return r.updateOne(ctx, "set reset token", ErrNotFound, filter, update)
}

func (r *mongoAccountRepository) ConsumeResetToken(ctx context.Context, id, token, passwordHash string, now time.Time) error {
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "resetPasswordToken", Value: token},
		{Key: "resetPasswordExpire", Value: bson.D{{Key: "$gt", Value: now.UTC()}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "password", Value: passwordHash}, {Key: "updatedAt", Value: r.now().UTC()}}},
		{Key: "$unset", Value: bson.D{{Key: "resetPasswordToken", Value: ""}, {Key: "resetPasswordExpire", Value: ""}}},
	}
	return r.updateOne(ctx, "consume reset token", ErrPreconditionFailed, filter, update)
}

func (r *mongoAccountRepository) ClearExpiredReset(ctx context.Context, id string, now time.Time) error {
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "resetPasswordExpire", Value: bson.D{{Key: "$lte", Value: now.UTC()}}},
	}
	update := bson.D{
		{Key: "$unset", Value: bson.D{{Key: "resetPasswordToken", Value: ""}, {Key: "resetPasswordExpire", Value: ""}}},
	}
	if _, err := r.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("clear expired reset: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) UpdatePasswordHash(ctx context.Context, id, currentHash, newHash string) error {
	filter := bson.D{{Key: "_id", Value: id}, {Key: "password", Value: currentHash}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "password", Value: newHash}, {Key: "updatedAt", Value: r.now().UTC()}}}}
	return r.updateOne(ctx, "update password", ErrPreconditionFailed, filter, update)
}

func (r *mongoAccountRepository) findOne(ctx context.Context, filter bson.D) (*domain.Account, error) {
	var doc accountDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *mongoAccountRepository) updateOne(ctx context.Context, op string, noMatch error, filter, update bson.D) error {
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return noMatch
	}
	return nil
}
