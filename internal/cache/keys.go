package cache

import "fmt"

// Scope distinguishes private and group conversations in the key layout.
type Scope string

const (
	ScopeUser  Scope = "user"
	ScopeGroup Scope = "group"
)

// Persisted key layout. Stable; clients of the cache backend depend on it.
//
//	{tier}:{scope}:message:history:{viewerId}:{counterpartId}[:zset | :{messageId}]
//	{scope}:unread:{recipientId}:{counterpartId}
//	{scope}:lastmsg:{recipientId}:{counterpartId}
//	user:online:{userId}
//	user:heartbeat:{sessionId}

// HistoryBaseKey builds the per-viewer conversation stem. For private chats
// each participant has their own stem; for groups counterpartID is the group.
func HistoryBaseKey(scope Scope, viewerID, counterpartID uint) string {
	return fmt.Sprintf("%s:message:history:%d:%d", scope, viewerID, counterpartID)
}

// IndexKey is the sorted-set index for a conversation stem within a tier.
func IndexKey(tier Tier, baseKey string) string {
	return fmt.Sprintf("%s:%s:zset", tier, baseKey)
}

// BodyKey addresses one serialized message body within a tier.
func BodyKey(tier Tier, baseKey string, messageID uint) string {
	return fmt.Sprintf("%s:%s:%d", tier, baseKey, messageID)
}

// BodyBaseKey is the tier-less body stem the tiered store prefixes.
func BodyBaseKey(baseKey string, messageID uint) string {
	return fmt.Sprintf("%s:%d", baseKey, messageID)
}

// TierKey prefixes a tier-less stem with its tier.
func TierKey(tier Tier, baseKey string) string {
	return fmt.Sprintf("%s:%s", tier, baseKey)
}

func UnreadKey(scope Scope, recipientID, counterpartID uint) string {
	return fmt.Sprintf("%s:unread:%d:%d", scope, recipientID, counterpartID)
}

func LastMsgKey(scope Scope, recipientID, counterpartID uint) string {
	return fmt.Sprintf("%s:lastmsg:%d:%d", scope, recipientID, counterpartID)
}

// UnreadPattern matches every unread counter a recipient owns in a scope.
func UnreadPattern(scope Scope, recipientID uint) string {
	return fmt.Sprintf("%s:unread:%d:*", scope, recipientID)
}

func OnlineKey(userID uint) string {
	return fmt.Sprintf("user:online:%d", userID)
}

func HeartbeatKey(sessionID string) string {
	return "user:heartbeat:" + sessionID
}
