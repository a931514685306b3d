package members

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/speps/go-hashids/v2"
)

// Alphabet avoids 0/O and 1/I confusion on printed member cards.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NumberGenerator produces member numbers like SCO-8N3KQ2. The hashid salt
// keeps numbers non-guessable without a counter table.
type NumberGenerator struct {
	h *hashids.HashID
}

func NewNumberGenerator(salt string) (*NumberGenerator, error) {
	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = 6
	data.Alphabet = alphabet

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, err
	}
	return &NumberGenerator{h: h}, nil
}

func (g *NumberGenerator) Generate() (string, error) {
	nonce := int64(uuid.New().ID())
	id, err := g.h.EncodeInt64([]int64{time.Now().Unix(), nonce})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SCO-%s", id), nil
}
