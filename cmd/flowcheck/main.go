// flowcheck drives one websocket session against a running server: join,
// post, ping and optionally ask a thread an LLM query, printing each step.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"chatserver-be/pkg/protocol"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type frame map[string]interface{}

func main() {
	base := flag.String("url", "ws://localhost:3000/api/ws", "websocket endpoint")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret used to mint the token")
	user := flag.String("user", "", "user id (must be a channel member)")
	channel := flag.String("channel", "", "channel id")
	thread := flag.String("thread", "", "thread id (optional)")
	query := flag.String("query", "", "natural-language question for the thread (optional)")
	wait := flag.Duration("wait", 60*time.Second, "how long to wait for each reply")
	flag.Parse()

	if *user == "" || *channel == "" || *secret == "" {
		color.Red("-user, -channel and a secret (-secret or JWT_SECRET) are required")
		os.Exit(2)
	}

	color.Cyan("🚀 Starting realtime flow check\n")

	token, err := mintToken(*secret, *user)
	if err != nil {
		fail("mint token: %v", err)
	}
	u, err := url.Parse(*base)
	if err != nil {
		fail("bad -url: %v", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	color.Yellow("\n1. Connect")
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			fail("dial: %v (status %s)", err, resp.Status)
		}
		fail("dial: %v", err)
	}
	defer conn.Close()
	color.Green("Connected as %s", *user)

	c := &client{conn: conn, wait: *wait}

	color.Yellow("\n2. Join channel")
	c.send(frame{"type": protocol.IntentJoinChannel, "channel_id": *channel})
	c.expect(protocol.KindChannelJoined)

	if *thread != "" {
		color.Yellow("\n3. Join thread")
		c.send(frame{"type": protocol.IntentJoinThread, "thread_id": *thread})
		c.expect(protocol.KindThreadJoined)
	}

	color.Yellow("\n4. Post a message")
	c.send(frame{"type": protocol.IntentSendMessage, "channel_id": *channel, "message": "flowcheck " + time.Now().Format(time.RFC3339)})
	c.expect(protocol.KindNewMessage)

	color.Yellow("\n5. Ping")
	c.send(frame{"type": protocol.IntentPing})
	c.expect(protocol.KindPong)

	if *thread != "" && *query != "" {
		color.Yellow("\n6. LLM query")
		c.send(frame{"type": protocol.IntentLLMQuery, "thread_id": *thread, "query": *query})
		got := c.expect(protocol.KindLLMResponse)
		if errMsg, ok := got["error"].(string); ok && errMsg != "" {
			color.Red("Query ended in error: %s", errMsg)
		} else {
			color.Green("SQL: %v", got["sql"])
			prettyPrint(got["results"])
		}
	}

	color.Cyan("\n✅ Flow check completed")
}

type client struct {
	conn *websocket.Conn
	wait time.Duration
}

func (c *client) send(f frame) {
	if err := c.conn.WriteJSON(f); err != nil {
		fail("send %v: %v", f["type"], err)
	}
}

// expect reads frames until one of the wanted kind arrives. Presence and
// typing events are printed and skipped; an error event aborts.
func (c *client) expect(kind protocol.Kind) frame {
	deadline := time.Now().Add(c.wait)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			fail("waiting for %s: %v", kind, err)
		}
		got, _ := f["type"].(string)
		switch protocol.Kind(got) {
		case kind:
			color.Green("← %s", got)
			return f
		case protocol.KindError:
			color.Red("← error")
			prettyPrint(f)
			os.Exit(1)
		default:
			color.White("← %s (skipped)", got)
		}
	}
}

func mintToken(secret, user string) (string, error) {
	if _, err := uuid.Parse(user); err != nil {
		return "", fmt.Errorf("user must be a uuid: %w", err)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
}

func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}

func fail(format string, args ...interface{}) {
	color.Red(format, args...)
	os.Exit(1)
}
