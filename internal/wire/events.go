// Package wire defines the event names and payload shapes exchanged with the
// storefront chat server, and the envelope framing used on the socket.
package wire

// Client to server.
const (
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
	EventMarkAsRead  = "mark_as_read"
)

// Server to client.
const (
	EventConnect            = "connect"
	EventConnectError       = "connect_error"
	EventRoomJoined         = "room_joined"
	EventReceiveMessage     = "receive_message"
	EventNewCustomerMessage = "new_customer_message"
	EventMessageDeleted     = "message_deleted"
)
