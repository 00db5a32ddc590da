package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/persistence"
	"github.com/tcriess/terrace-buddy/types"
)

type broadcast struct {
	kind        string
	communityId string
	channelId   string
	senderId    string
	receiverId  string
	msg         *types.Message
}

type recordingBroadcaster struct {
	broadcasts []broadcast
	err        error
}

func (b *recordingBroadcaster) BroadcastChannelMessage(communityId, channelId string, msg *types.Message) error {
	b.broadcasts = append(b.broadcasts, broadcast{kind: "channel", communityId: communityId, channelId: channelId, msg: msg})
	return b.err
}

func (b *recordingBroadcaster) BroadcastDirectMessage(senderId, receiverId string, msg *types.Message) error {
	b.broadcasts = append(b.broadcasts, broadcast{kind: "direct", senderId: senderId, receiverId: receiverId, msg: msg})
	return b.err
}

type failingPersister struct {
	persistence.Persister
}

func (failingPersister) StoreMessage(*types.Message) error {
	return errors.New("disk full")
}

type staticMembership map[string]bool

func (m staticMembership) IsMember(communityId, userId string) (bool, error) {
	return m[communityId+"/"+userId], nil
}

func newTestPersister(t *testing.T) persistence.Persister {
	p, err := persistence.NewPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

var alice = &types.Identity{Id: "alice", DisplayName: "Alice", Role: types.RoleUser}

func TestSendChannelMessage(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.StoreUser(types.User{Id: "alice", Name: "Alice"}))
	b := &recordingBroadcaster{}
	s := NewService(p, nil, b)

	msg, err := s.SendChannelMessage(alice, "c1", "g1", " hi ", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, types.MessageTypeText, msg.Type)
	require.Len(t, b.broadcasts, 1)
	assert.Equal(t, "c1", b.broadcasts[0].communityId)
	assert.Equal(t, "g1", b.broadcasts[0].channelId)
	assert.Same(t, msg, b.broadcasts[0].msg)
	assert.Equal(t, "Alice", msg.Sender.Name)

	// the broadcast record equals the persisted one
	stored := &types.Message{Id: msg.Id}
	require.NoError(t, p.GetMessage(stored))
	assert.Equal(t, msg.Content, stored.Content)
	assert.True(t, msg.CreatedAt.Equal(stored.CreatedAt))
	assert.Equal(t, msg.Sender, stored.Sender)

	image, err := s.SendChannelMessage(alice, "c1", "g1", "", "https://img/1.png")
	require.NoError(t, err)
	assert.Equal(t, types.MessageTypeImage, image.Type)
}

func TestSendChannelMessageInvalid(t *testing.T) {
	b := &recordingBroadcaster{}
	s := NewService(newTestPersister(t), nil, b)

	_, err := s.SendChannelMessage(alice, "c1", "", "hi", "")
	assert.True(t, errors.Is(err, ErrInvalidMessage))
	_, err = s.SendChannelMessage(alice, "", "g1", "hi", "")
	assert.True(t, errors.Is(err, ErrInvalidMessage))
	_, err = s.SendChannelMessage(alice, "c1", "g1", "   ", "")
	assert.True(t, errors.Is(err, ErrInvalidMessage))
	assert.Empty(t, b.broadcasts)
}

func TestSendChannelMessageMembership(t *testing.T) {
	b := &recordingBroadcaster{}
	s := NewService(newTestPersister(t), staticMembership{"c1/alice": true}, b)

	_, err := s.SendChannelMessage(alice, "c2", "g1", "hi", "")
	assert.True(t, errors.Is(err, ErrNotMember))
	assert.Empty(t, b.broadcasts)

	_, err = s.SendChannelMessage(alice, "c1", "g1", "hi", "")
	require.NoError(t, err)
	assert.Len(t, b.broadcasts, 1)
}

func TestPersistenceFailureSkipsBroadcast(t *testing.T) {
	b := &recordingBroadcaster{}
	s := NewService(failingPersister{newTestPersister(t)}, nil, b)

	_, err := s.SendChannelMessage(alice, "c1", "g1", "hi", "")
	assert.Error(t, err)
	_, err = s.SendDirectMessage(alice, "bob", "hey")
	assert.Error(t, err)
	assert.Empty(t, b.broadcasts)
}

func TestBroadcastFailureKeepsMessage(t *testing.T) {
	p := newTestPersister(t)
	b := &recordingBroadcaster{err: errors.New("no live transport")}
	s := NewService(p, nil, b)

	msg, err := s.SendDirectMessage(alice, "bob", "hey")
	require.NoError(t, err)
	history, err := p.GetDirectHistory("bob", "alice", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.Id, history[0].Id)
}

func TestSendDirectMessage(t *testing.T) {
	b := &recordingBroadcaster{}
	s := NewService(newTestPersister(t), nil, b)

	msg, err := s.SendDirectMessage(alice, "bob", "hey")
	require.NoError(t, err)
	assert.True(t, msg.IsDirect)
	assert.Equal(t, "bob", msg.ReceiverId)
	require.Len(t, b.broadcasts, 1)
	assert.Equal(t, "alice", b.broadcasts[0].senderId)
	assert.Equal(t, "bob", b.broadcasts[0].receiverId)

	_, err = s.SendDirectMessage(alice, "", "hey")
	assert.True(t, errors.Is(err, ErrInvalidMessage))

	// messages to oneself are allowed
	_, err = s.SendDirectMessage(alice, "alice", "note to self")
	require.NoError(t, err)
}
