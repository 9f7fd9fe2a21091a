package session

// Status is the client side session state.
type Status int

const (
	StatusIdle Status = iota
	StatusQueueing
	StatusInGame
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusQueueing:
		return "QUEUEING"
	case StatusInGame:
		return "IN_GAME"
	case StatusFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Topics and destinations of the realtime broker.
const (
	TopicLobby        = "/topic/lobby"
	DestLobbyRegister = "/app/lobby.register"
)

func GameTopic(gameID string) string {
	return "/topic/game/" + gameID
}

func ReactionTopic(gameID string) string {
	return GameTopic(gameID) + "/gif"
}

func JoinDestination(gameID string) string {
	return "/app/game.join/" + gameID
}

func MoveDestination(gameID string) string {
	return "/app/game.move/" + gameID
}

func ReactionDestination(gameID string) string {
	return "/app/game.gif/" + gameID
}
