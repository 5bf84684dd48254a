package chess

import (
	"fmt"
	"math"
	"strings"

	"github.com/park285/cheese-arena/internal/uci"
)

const (
	MinElo = 400
	MaxElo = 3200

	maxSkillLevel = 20
)

var levelElo = map[string]int{
	"level1": 600,
	"level2": 700,
	"level3": 800,
	"level4": 1000,
	"level5": 1200,
	"level6": 1400,
	"level7": 1650,
	"level8": 1900,
}

var levelAliases = map[string]string{
	"beginner":     "level1",
	"intermediate": "level5",
	"advanced":     "level7",
	"master":       "level8",
}

// EloForLevel resolves a named difficulty ("level1".."level8" or an alias) to a target rating.
func EloForLevel(name string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := levelAliases[key]; ok {
		key = alias
	}
	elo, ok := levelElo[key]
	if !ok {
		return 0, fmt.Errorf("unknown difficulty level: %s", name)
	}
	return elo, nil
}

// SkillForElo maps a rating onto the engine's 0-20 skill scale linearly across MinElo..MaxElo.
func SkillForElo(elo int) int {
	skill := int(math.Round(float64(elo-MinElo) / float64(MaxElo-MinElo) * maxSkillLevel))
	if skill < 0 {
		return 0
	}
	if skill > maxSkillLevel {
		return maxSkillLevel
	}
	return skill
}

// OptionsForElo configures a strength-limited opponent.
func OptionsForElo(elo, threads, hashMB int) uci.Options {
	return uci.Options{
		Threads:       threads,
		HashMB:        hashMB,
		SkillLevel:    SkillForElo(elo),
		MultiPV:       1,
		LimitStrength: true,
		Elo:           elo,
	}
}

// FullStrength configures the engine used for reviews.
func FullStrength(threads, hashMB int) uci.Options {
	return uci.Options{
		Threads:    threads,
		HashMB:     hashMB,
		SkillLevel: maxSkillLevel,
		MultiPV:    1,
	}
}
