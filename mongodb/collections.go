package mongodb

import "go.pilab.hu/recovery/domain"

const (
	UsersCollection    = domain.UsersCollection // Profile documents, keyed by identity
	AccountsCollection = "accounts"             // Email/password accounts of the identity provider
)
