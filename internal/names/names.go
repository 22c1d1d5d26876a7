// Package names generates display names for participants that join without
// choosing one.
package names

import (
	"math/rand/v2"
)

var adjectives = []string{
	"Brave", "Calm", "Clever", "Cosy", "Curious", "Eager", "Fuzzy", "Gentle",
	"Happy", "Jolly", "Lucky", "Mellow", "Nimble", "Quiet", "Rapid", "Sleepy",
	"Sneaky", "Sunny", "Swift", "Witty",
}

var animals = []string{
	"Badger", "Beaver", "Capybara", "Otter", "Falcon", "Ferret", "Fox", "Gecko",
	"Hedgehog", "Koala", "Lemur", "Lynx", "Marten", "Owl", "Panda", "Penguin",
	"Raccoon", "Seal", "Tapir", "Wombat",
}

// Random returns a name such as "Sleepy Otter".
func Random() string {
	return adjectives[rand.IntN(len(adjectives))] + " " + animals[rand.IntN(len(animals))]
}
