package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"storefront-chat/internal/admin"
	"storefront-chat/internal/config"
	"storefront-chat/internal/connection"
	"storefront-chat/internal/devserver"
	"storefront-chat/internal/models"
	"storefront-chat/internal/observability"
	"storefront-chat/internal/widget"
	"storefront-chat/internal/wire"
)

func main() {
	mode := flag.String("mode", "customer", "customer, admin or serve")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.Trace.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(context.Background(), cfg.Trace.OTLPEndpoint)
		if err != nil {
			log.Printf("tracing disabled: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	switch *mode {
	case "serve":
		srv := devserver.New(cfg.Socket.Path)
		log.Printf("chat devserver listening on %s", cfg.Server.Addr)
		if err := srv.Run(cfg.Server.Addr); err != nil {
			log.Fatalf("server error: %v", err)
		}
	case "customer":
		runCustomer(cfg)
	case "admin":
		runAdmin(cfg)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

func newManager(cfg *config.Config) *connection.Manager {
	socketURL, err := cfg.Socket.SocketURL()
	if err != nil {
		log.Fatalf("invalid socket config: %v", err)
	}
	return connection.NewManager(connection.Options{
		URL:                  socketURL,
		Transports:           cfg.Socket.Transports,
		ReconnectionAttempts: cfg.Socket.ReconnectionAttempts,
		ReconnectionDelay:    cfg.Socket.ReconnectionDelay,
		ReconnectionDelayMax: cfg.Socket.ReconnectionDelayMax,
		Timeout:              cfg.Socket.Timeout,
	})
}

func runCustomer(cfg *config.Config) {
	userID := getEnv("CHAT_USER_ID", uuid.NewString())
	userName := getEnv("CHAT_USER_NAME", "Guest")

	mgr := newManager(cfg)
	defer mgr.Close()

	w := widget.New(mgr, userID, userName)
	mgr.On(wire.EventReceiveMessage, func(data json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04"), msg.SenderName, msg.DisplayBody())
	})
	mgr.Connect()
	w.Open()

	fmt.Printf("chatting as %s; type a message, or /quit\n", userName)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "/quit":
			return
		case "":
		default:
			w.Compose(line)
			if err := w.Send(); err != nil {
				log.Printf("send failed: %v", err)
			}
		}
	}
}

func runAdmin(cfg *config.Config) {
	adminID := getEnv("CHAT_ADMIN_ID", "admin")
	adminName := getEnv("CHAT_ADMIN_NAME", "Support")

	mgr := newManager(cfg)
	defer mgr.Close()

	roomsClient := admin.NewRoomsClient(cfg.REST.BaseURL, cfg.REST.Timeout)
	console := admin.New(mgr, roomsClient, adminID, adminName)

	mgr.On(wire.EventReceiveMessage, func(data json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04"), msg.SenderName, msg.DisplayBody())
	})
	mgr.On(wire.EventNewCustomerMessage, func(data json.RawMessage) {
		var payload wire.NewCustomerMessage
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		fmt.Printf("* activity in room %s (%s): %s\n",
			payload.RoomID, payload.Message.SenderName, payload.Message.DisplayBody())
	})

	mgr.Connect()
	console.Seed(context.Background())

	fmt.Println("commands: /rooms, /focus <room_id>, /quit; anything else replies to the focused room")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "":
		case line == "/rooms":
			for _, room := range console.Rooms() {
				fmt.Printf("%s  %s  unread=%d  last=%q\n",
					room.RoomID, room.UserName, room.Unread.Admin, room.LastMessage)
			}
		case strings.HasPrefix(line, "/focus "):
			roomID := strings.TrimSpace(strings.TrimPrefix(line, "/focus "))
			if err := console.Focus(roomID); err != nil {
				log.Printf("focus failed: %v", err)
			}
		default:
			if err := console.Send(line); err != nil {
				log.Printf("send failed: %v", err)
			}
		}
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
