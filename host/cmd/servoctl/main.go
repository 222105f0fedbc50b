package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"servopulse/host/controller"
	"servopulse/host/serial"
)

var (
	device = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud   = flag.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
)

func main() {
	flag.Parse()

	fmt.Println("servoctl - servo controller host")
	fmt.Println("================================")

	conn := controller.New()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	fmt.Printf("Connecting on %s...\n", *device)
	if err := conn.ConnectWithConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := conn.RetrieveDictionary(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to retrieve dictionary: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Connected, dictionary %d bytes\n", len(conn.GetDictionaryRaw()))

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		var err error
		switch cmd {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "dict":
			conn.PrintDictionary()

		case "raw":
			raw := conn.GetDictionaryRaw()
			fmt.Printf("Raw dictionary data (%d bytes):\n%s\n", len(raw), string(raw))

		case "start":
			err = doStart(conn, args)

		case "resume":
			err = conn.ResumeServos()

		case "stop":
			err = conn.StopServos()

		case "target":
			err = doSetPair(args, conn.SetTarget)

		case "ticks":
			err = doSetPair(args, conn.SetTargetTicks)

		case "speed":
			err = doSetPair(args, conn.SetSpeed)

		case "state":
			err = doState(conn, args)

		case "clock":
			var clock uint32
			clock, err = conn.GetClock()
			if err == nil {
				fmt.Printf("clock=%d\n", clock)
			}

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
		}

		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  start <pin> [pin...]  - Assign pins to channels and start")
	fmt.Println("  resume                - Restart with the previous assignment")
	fmt.Println("  stop                  - Stop pulse generation")
	fmt.Println("  target <ch> <us>      - Set target pulse width (microseconds)")
	fmt.Println("  ticks <ch> <ticks>    - Set target pulse width (1/24 us ticks)")
	fmt.Println("  speed <ch> <ticks>    - Set speed limit (ticks/period, 0 = none)")
	fmt.Println("  state <ch>            - Query channel state")
	fmt.Println("  clock                 - Query device tick counter")
	fmt.Println("  dict                  - Print dictionary summary")
	fmt.Println("  raw                   - Print raw dictionary JSON")
	fmt.Println("  quit/exit/q           - Exit the program")
	fmt.Println()
}

func doStart(conn *controller.Controller, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: start <pin> [pin...]")
	}
	pins := make([]uint8, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 8)
		if err != nil {
			return fmt.Errorf("bad pin %q: %w", a, err)
		}
		pins[i] = uint8(v)
	}
	return conn.StartServos(pins)
}

func doSetPair(args []string, set func(uint8, uint16) error) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: <channel> <value>")
	}
	ch, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return fmt.Errorf("bad channel %q: %w", args[0], err)
	}
	val, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("bad value %q: %w", args[1], err)
	}
	return set(uint8(ch), uint16(val))
}

func doState(conn *controller.Controller, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: state <channel>")
	}
	ch, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return fmt.Errorf("bad channel %q: %w", args[0], err)
	}
	state, err := conn.State(uint8(ch))
	if err != nil {
		return err
	}
	fmt.Printf("channel=%d target=%d position=%d speed=%d moving=%v\n",
		state.Channel, state.Target, state.Position, state.Speed, state.Moving)
	return nil
}
