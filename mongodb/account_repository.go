package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/recovery/domain"
)

// emailCollation makes email comparisons case-insensitive.
var emailCollation = &options.Collation{Locale: "en", Strength: 2}

// AccountRepository implements domain.AccountRepository.
type AccountRepository struct {
	accounts *mongo.Collection
}

// NewAccountRepository creates the repository and ensures its indexes.
func NewAccountRepository(ctx context.Context, db *mongo.Database) (*AccountRepository, error) {
	repo := &AccountRepository{accounts: db.Collection(AccountsCollection)}
	if err := repo.createIndexes(ctx); err != nil {
		// Existing compatible indexes make this fail; the repository still works.
		log.Warn().Err(err).Msg("Failed to create account indexes")
	}
	return repo, nil
}

func (r *AccountRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(emailCollation),
		},
	}
	if _, err := r.accounts.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for accounts collection: %w", err)
	}
	log.Info().Msg("Indexes for accounts collection ensured.")
	return nil
}

// CreateAccount inserts account. A duplicate email yields domain.ErrEmailAlreadyInUse.
func (r *AccountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		return errors.New("account ID is required")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.UpdatedAt = account.CreatedAt

	if _, err := r.accounts.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrEmailAlreadyInUse
		}
		log.Error().Err(err).Str("email", account.Email).Msg("Error creating account in MongoDB")
		return err
	}
	return nil
}

// GetAccountByEmail looks the account up case-insensitively.
func (r *AccountRepository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var acc domain.Account
	opts := options.FindOne().SetCollation(emailCollation)
	if err := r.accounts.FindOne(ctx, bson.M{"email": email}, opts).Decode(&acc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		log.Error().Err(err).Str("email", email).Msg("Error getting account by email from MongoDB")
		return nil, err
	}
	return &acc, nil
}

// GetAccountByID retrieves an account by its identity.
func (r *AccountRepository) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	var acc domain.Account
	if err := r.accounts.FindOne(ctx, bson.M{"_id": id}).Decode(&acc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		log.Error().Err(err).Str("id", id).Msg("Error getting account by ID from MongoDB")
		return nil, err
	}
	return &acc, nil
}

var _ domain.AccountRepository = (*AccountRepository)(nil)
