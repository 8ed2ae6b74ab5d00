package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "bazaar-dev"}
	assert.Equal(t, "projects/bazaar-dev/topics/orders", c.topicResourceName(" orders "))
	assert.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	assert.Empty(t, c.topicResourceName(""))
	assert.Empty(t, (&Client{}).topicResourceName("orders"))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: "orders", NotificationTopic: "  "})
	assert.Equal(t, []string{"orders"}, names)
}

func TestClientOptionsUsesInlineCredentials(t *testing.T) {
	assert.Empty(t, clientOptions(config.GCPConfig{ProjectID: "p"}))
	assert.Len(t, clientOptions(config.GCPConfig{ProjectID: "p", CredentialsJSON: `{"type":"service_account"}`}), 1)
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	assert.Error(t, c.Ping(nil))
	assert.NoError(t, c.Close())
}
