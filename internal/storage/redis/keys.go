package redis

import (
	"fmt"

	"github.com/mcoot/georally/internal/model"
)

// Key prefix for all game-related data
const keyPrefix = "georally"

// roundKey returns the Redis key for a finished round
func roundKey(id model.SessionID) string {
	return fmt.Sprintf("%s:round:%s", keyPrefix, id)
}

// experienceKey returns the Redis key for a player's experience counter
func experienceKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:experience:%s", keyPrefix, id)
}

// playerRoundsIndexKey returns the Redis key for the SET of rounds a player took part in
func playerRoundsIndexKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:idx:rounds_for_player:%s", keyPrefix, id)
}
