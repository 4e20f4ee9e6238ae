package refreshrepofake

import (
	"errors"
	"sort"
	"sync"

	"github.com/jatinkumar-gitdev/happily-mart/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

var ErrNotFound = errors.New("not found")

type FakeRefreshTokenRepo struct {
	tokens map[string]*refresh.StoredRefreshToken
	owners map[string]string // user ID + namespace to token
	lock   sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[string]*refresh.StoredRefreshToken),
		owners: make(map[string]string),
	}
}

func ownerKey(userID, namespace string) string {
	return namespace + "/" + userID
}

func (tr *FakeRefreshTokenRepo) Upsert(refreshToken *refresh.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	stored := *refreshToken
	tr.tokens[stored.Token] = &stored
	tr.owners[ownerKey(stored.UserID, stored.Namespace)] = stored.Token
	return nil
}

func (tr *FakeRefreshTokenRepo) Delete(token string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return ErrNotFound
	}
	key := ownerKey(rt.UserID, rt.Namespace)
	if tr.owners[key] == token {
		delete(tr.owners, key)
	}
	delete(tr.tokens, token)
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(token string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	rt, ok := tr.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	stored := *rt
	return &stored, nil
}

func (tr *FakeRefreshTokenRepo) GetByUser(userID, namespace string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	token, ok := tr.owners[ownerKey(userID, namespace)]
	if !ok {
		return nil, ErrNotFound
	}
	stored := *tr.tokens[token]
	return &stored, nil
}

func (tr *FakeRefreshTokenRepo) List(offset, limit int) ([]*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	tokens := make([]*refresh.StoredRefreshToken, 0, len(tr.tokens))
	for _, v := range tr.tokens {
		stored := *v
		tokens = append(tokens, &stored)
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Iat.Before(tokens[j].Iat)
	})

	if offset >= len(tokens) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(tokens) {
		end = len(tokens)
	}
	return tokens[offset:end], nil
}
