package main

import (
	"fmt"
	"io"
)

// commandHelp is the detailed text shown by "help <command>".
var commandHelp = map[string]string{
	"login": `login {host:port} {username} {password}
login {username} {password}
    Connect to the broker and log in. Without an address the broker from
    the configuration (STOMP_BROKER) is used. ws:// and wss:// addresses
    connect over WebSocket.`,
	"join": `join {game_name}
    Subscribe to a game channel, e.g. "join Germany_Japan".`,
	"exit": `exit {game_name}
    Unsubscribe from a game channel.`,
	"report": `report {file}
    Read a JSON report file and publish each of its events to the game
    channel. Every event waits for the broker's receipt before the next
    one is sent. The game must be joined first.`,
	"summary": `summary {game_name} {user} {file}
    Write the events received from user for a game to file. Works while
    logged out.`,
	"logout": `logout
    Leave every channel, disconnect and wait for the broker to confirm.`,
	"help": `help [command]
    Show the command list, or details for one command.`,
	"quit": `quit
    Log out if needed and leave the client. End of input does the same.`,
}

// printHelp writes the command list, or the detailed help for topic.
func printHelp(w io.Writer, topic string) {
	if topic == "" {
		fmt.Fprint(w, `Commands:
  login {host:port} {user} {password}   Log in to the broker
  join {game_name}                      Subscribe to a game channel
  exit {game_name}                      Unsubscribe from a game channel
  report {file}                         Publish the events in a report file
  summary {game_name} {user} {file}     Write a game summary to a file
  logout                                Disconnect from the broker
  help [command]                        Show help
  quit                                  Leave the client
`)
		return
	}

	if text, ok := commandHelp[topic]; ok {
		fmt.Fprintln(w, text)
		return
	}
	fmt.Fprintf(w, "No help for '%s'. Type help to see available commands.\n", topic)
}
