package identity

import (
	"crypto/rand"
	"math/big"
)

// adjectives and nouns back create_agent_identity's auto-generated
// "AdjectiveNoun" display names (e.g. "BlueLake"). No example in the pack
// ships a name-list generator or a third-party word-list dependency, so
// this draws from a small fixed vocabulary using crypto/rand for
// collision-resistant randomness across concurrently registering agents.
var nameAdjectives = []string{
	"Blue", "Green", "Purple", "Jade", "Amber", "Crimson", "Silver", "Golden",
	"Violet", "Scarlet", "Copper", "Cobalt", "Ivory", "Obsidian", "Coral", "Sable",
}

var nameNouns = []string{
	"Lake", "Castle", "Bear", "Pond", "River", "Mountain", "Forest", "Harbor",
	"Falcon", "Otter", "Canyon", "Meadow", "Ridge", "Glacier", "Delta", "Summit",
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// GenerateName returns a random "AdjectiveNoun" display name. Callers are
// expected to retry against the repository's uniqueness constraint on
// collision within a project.
func GenerateName() (string, error) {
	ai, err := randomIndex(len(nameAdjectives))
	if err != nil {
		return "", err
	}
	ni, err := randomIndex(len(nameNouns))
	if err != nil {
		return "", err
	}
	return nameAdjectives[ai] + nameNouns[ni], nil
}
