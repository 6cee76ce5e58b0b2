package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/converter-registry-go/streams/jsonrpc/client"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultMirrorBufferSize = 100
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// SafeMirror is a thread-safe container for the latest registry mirror.
type SafeMirror struct {
	mu     sync.RWMutex
	mirror *client.Mirror
}

func (s *SafeMirror) Update(newMirror *client.Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = newMirror
}

func (s *SafeMirror) Get() *client.Mirror {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror
}

// console bundles the live mirror with the write path. Reads come from the
// mirror; mutations go over JSON-RPC with the configured caller address.
type console struct {
	url        string
	caller     common.Address
	safeMirror *SafeMirror
	logger     *slog.Logger

	mu        sync.Mutex
	rpcClient *rpc.Client
}

// call invokes a registry method over JSON-RPC, dialing on first use.
func (c *console) call(ctx context.Context, result any, method string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient == nil {
		rpcClient, err := rpc.DialContext(ctx, c.url)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", c.url, err)
		}
		c.rpcClient = rpcClient
		c.logger.Info("Connected write path", "url", c.url)
	}

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.rpcClient.CallContext(callCtx, result, method, args...)
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogHandler := slog.NewJSONHandler(logFile, nil)
	rootLogger := slog.New(rootLogHandler)

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. FLAGS & CONTEXT ---
	url, caller, err := parseFlags()
	if err != nil {
		rootLogger.Error("Failed to parse flags", "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. INITIALIZE MIRROR CLIENT ---
	mirrorClient, err := client.NewClient(
		ctx,
		client.Config{
			URL:        url,
			Logger:     rootLogger.With("component", "jsonrpc-client"),
			BufferSize: DefaultMirrorBufferSize,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", url, "error", err)
		closeApp()
	}

	// --- 4. START CONSOLE & MIRROR LOOP ---
	safeMirror := &SafeMirror{}
	c := &console{
		url:        url,
		caller:     caller,
		safeMirror: safeMirror,
		logger:     rootLogger,
	}

	fmt.Println(Green + "Starting Converter Registry Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	go runConsole(ctx, c)

	for {
		select {
		case m := <-mirrorClient.Mirrors():
			safeMirror.Update(m)

		case err := <-mirrorClient.Err():
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

// runConsole handles user input and display.
func runConsole(ctx context.Context, c *console) {
	reader := bufio.NewReader(os.Stdin)
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}
		input = strings.TrimSpace(input)

		handleCommand(ctx, c, input, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "CONVERTER REGISTRY CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Registry Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s List Tokens\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Find Converters %s(by Token Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Find Token      %s(by Converter Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Register Converter\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Unregister Converter\n", Cyan, Reset)
	fmt.Printf(" %s7.%s Transfer Ownership\n", Cyan, Reset)
	fmt.Printf(" %s8.%s Accept Ownership\n", Cyan, Reset)
	fmt.Printf(" %s9.%s Watch Registry  %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help / Data Model\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func handleCommand(ctx context.Context, c *console, input string, reader *bufio.Reader) {
	mirror := c.safeMirror.Get()

	// Allow help and quit even if the mirror isn't ready
	if mirror == nil && input != "q" && input != "h" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for first registry update... (Check connection/logs)" + Reset)
		return
	}

	switch input {
	case "1":
		printStatus(mirror)
	case "2":
		listTokens(mirror)
	case "3":
		findConverters(mirror, reader)
	case "4":
		findToken(mirror, reader)
	case "5":
		registerConverter(ctx, c, reader)
	case "6":
		unregisterConverter(ctx, c, reader)
	case "7":
		transferOwnership(ctx, c, reader)
	case "8":
		acceptOwnership(ctx, c)
	case "9":
		watchRegistry(c.safeMirror, reader)
	case "h":
		printHelp()
	case "q":
		exitConsole()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printHelp() {
	// Clear screen to make reading the data model easy
	fmt.Print("\033[H\033[2J")

	header("CONVERTER REGISTRY DATA MODEL")
	fmt.Println(Bold + "Concept: Owned Token-Converter Index" + Reset)
	fmt.Println("The registry maps tokens to ordered converter lists and every converter")
	fmt.Println("back to its token, under the control of a single owner.")
	fmt.Println("")

	fmt.Println(Bold + "1. THE FORWARD INDEX" + Reset)
	fmt.Println("   Each " + Cyan + "Token" + Reset + " owns an ordered list of " + Cyan + "Converters" + Reset + ".")
	fmt.Println("   - New converters append at the end of the list.")
	fmt.Println("   - Removal is by index and " + Green + "preserves the order" + Reset + " of the rest.")
	fmt.Println("   - A token stays listed once seen, even with zero converters left.")
	fmt.Println("")

	fmt.Println(Bold + "2. THE REVERSE INDEX" + Reset)
	fmt.Println("   Every converter belongs to " + Green + "at most one" + Reset + " token.")
	fmt.Println("   Registering a converter twice is rejected, even under another token.")
	fmt.Println("")

	fmt.Println(Bold + "3. OWNERSHIP" + Reset)
	fmt.Println("   Mutations require the " + Yellow + "owner" + Reset + " as caller.")
	fmt.Println("   Transfer is a two-phase handshake: the owner proposes a successor,")
	fmt.Println("   and the successor accepts. Proposing the zero address withdraws.")
	fmt.Println("")

	fmt.Println(Bold + "4. THE STREAM" + Reset)
	fmt.Println("   Subscribers receive a full snapshot, then versioned diffs.")
	fmt.Println("   This console mirrors the stream; reads never touch the server.")
	fmt.Println("")

	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
	fmt.Println(Bold + "PURPOSE OF THIS CONSOLE" + Reset)
	fmt.Println("Inspect the live registry, follow updates as they happen, and drive")
	fmt.Println("mutations against a running registryd with the -caller address.")
	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
}

func printStatus(mirror *client.Mirror) {
	reg := mirror.Registry

	bindings := 0
	for _, token := range reg.Tokens() {
		bindings += reg.ConverterCount(token)
	}

	fmt.Printf("\n%sSTATUS  ::%s Version %s#%d%s | Tokens %s%d%s | Bindings %s%d%s\n",
		Green, Reset,
		Bold, reg.Version(), Reset,
		Bold, reg.TokenCount(), Reset,
		Bold, bindings, Reset,
	)

	fmt.Printf(" %s%-15s%s %s\n", Gray, "Owner:", Reset, mirror.Owner.Hex())
	if mirror.PendingOwner == (common.Address{}) {
		fmt.Printf(" %s%-15s%s none\n", Gray, "Pending Owner:", Reset)
	} else {
		fmt.Printf(" %s%-15s%s %s%s%s\n", Gray, "Pending Owner:", Reset, Yellow, mirror.PendingOwner.Hex(), Reset)
	}
}

func listTokens(mirror *client.Mirror) {
	header("REGISTERED TOKENS")

	reg := mirror.Registry
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "#\tTOKEN\tCONVERTERS\t")
	fmt.Fprintln(w, "-\t-----\t----------\t")

	empty := 0
	for i, token := range reg.Tokens() {
		count := reg.ConverterCount(token)
		if count == 0 {
			empty++
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t\n", i, token.Hex(), count)
	}
	w.Flush()

	fmt.Printf("\n%sTokens listed: %d (empty: %d)%s\n", Bold, reg.TokenCount(), empty, Reset)
}

func findConverters(mirror *client.Mirror, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Find Converters] Enter Token Address (Hex): " + Reset)
	token, ok := readAddress(reader)
	if !ok {
		return
	}

	converters := mirror.Registry.ConvertersFor(token)
	if len(converters) == 0 {
		fmt.Println(Yellow + "[INFO] No converters registered for this token." + Reset)
		return
	}

	header("CONVERTERS FOR " + token.Hex())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "INDEX\tCONVERTER\t")
	fmt.Fprintln(w, "-----\t---------\t")
	for i, converter := range converters {
		fmt.Fprintf(w, "%d\t%s\t\n", i, converter.Hex())
	}
	w.Flush()
}

func findToken(mirror *client.Mirror, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Find Token] Enter Converter Address (Hex): " + Reset)
	converter, ok := readAddress(reader)
	if !ok {
		return
	}

	token, found := mirror.Registry.TokenFor(converter)
	if !found {
		fmt.Println(Red + "[NOT FOUND] Converter not registered." + Reset)
		return
	}

	header("CONVERTER BINDING")
	fmt.Printf(" %s%-12s%s %s\n", Gray, "Converter:", Reset, converter.Hex())
	fmt.Printf(" %s%-12s%s %s\n", Gray, "Token:", Reset, token.Hex())
}

func registerConverter(ctx context.Context, c *console, reader *bufio.Reader) {
	if !requireCaller(c) {
		return
	}

	fmt.Print("\n" + Bold + "[Register] Token Address: " + Reset)
	token, ok := readAddress(reader)
	if !ok {
		return
	}
	fmt.Print(Bold + "[Register] Converter Address: " + Reset)
	converter, ok := readAddress(reader)
	if !ok {
		return
	}

	if err := c.call(ctx, nil, "registry_registerConverter", c.caller, token, converter); err != nil {
		fmt.Printf(Red+"[REJECTED] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"[OK] Converter %s registered for token %s.%s\n", converter.Hex(), token.Hex(), Reset)
}

func unregisterConverter(ctx context.Context, c *console, reader *bufio.Reader) {
	if !requireCaller(c) {
		return
	}

	fmt.Print("\n" + Bold + "[Unregister] Token Address: " + Reset)
	token, ok := readAddress(reader)
	if !ok {
		return
	}
	fmt.Print(Bold + "[Unregister] Converter Index: " + Reset)
	input, _ := reader.ReadString('\n')
	index, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		fmt.Printf(Red+"[ERROR] Invalid index: %v%s\n", err, Reset)
		return
	}

	var removed common.Address
	if err := c.call(ctx, &removed, "registry_unregisterConverter", c.caller, token, index); err != nil {
		fmt.Printf(Red+"[REJECTED] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"[OK] Removed converter %s.%s\n", removed.Hex(), Reset)
}

func transferOwnership(ctx context.Context, c *console, reader *bufio.Reader) {
	if !requireCaller(c) {
		return
	}

	fmt.Print("\n" + Bold + "[Transfer] New Owner Address (empty to withdraw the pending proposal): " + Reset)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	newOwner := common.Address{}
	if input != "" {
		if !common.IsHexAddress(input) {
			fmt.Printf(Red+"[ERROR] Invalid address: %s%s\n", input, Reset)
			return
		}
		newOwner = common.HexToAddress(input)
	}

	if err := c.call(ctx, nil, "registry_transferOwnership", c.caller, newOwner); err != nil {
		fmt.Printf(Red+"[REJECTED] %v%s\n", err, Reset)
		return
	}
	if newOwner == (common.Address{}) {
		fmt.Println(Green + "[OK] Pending proposal withdrawn." + Reset)
		return
	}
	fmt.Printf(Green+"[OK] Ownership proposed to %s. The new owner must accept.%s\n", newOwner.Hex(), Reset)
}

func acceptOwnership(ctx context.Context, c *console) {
	if !requireCaller(c) {
		return
	}

	if err := c.call(ctx, nil, "registry_acceptOwnership", c.caller); err != nil {
		fmt.Printf(Red+"[REJECTED] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"[OK] Ownership accepted by %s.%s\n", c.caller.Hex(), Reset)
}

func watchRegistry(safeMirror *SafeMirror, reader *bufio.Reader) {
	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)
	time.Sleep(1 * time.Second)

	stopCh := make(chan struct{})
	go func() {
		reader.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastVersion uint64
	var lastOwner, lastPending common.Address
	drawn := false

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			mirror := safeMirror.Get()
			if mirror == nil {
				continue
			}

			version := mirror.Registry.Version()
			if drawn && version == lastVersion && mirror.Owner == lastOwner && mirror.PendingOwner == lastPending {
				continue
			}
			drawn = true
			lastVersion = version
			lastOwner = mirror.Owner
			lastPending = mirror.PendingOwner

			fmt.Print("\033[H\033[2J")
			fmt.Printf(Bold+"\n--- LIVE MONITOR (Version: %d) ---\n"+Reset, version)
			fmt.Println(Gray + "Press ENTER to return to menu." + Reset)

			printStatus(mirror)
			printBindingTable(mirror)
		}
	}
}

func printBindingTable(mirror *client.Mirror) {
	header("BINDINGS")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tINDEX\tCONVERTER\t")
	fmt.Fprintln(w, "-----\t-----\t---------\t")
	for _, token := range mirror.Registry.Tokens() {
		converters := mirror.Registry.ConvertersFor(token)
		if len(converters) == 0 {
			fmt.Fprintf(w, "%s\t-\t%s\t\n", token.Hex(), Gray+"(empty)"+Reset)
			continue
		}
		for i, converter := range converters {
			fmt.Fprintf(w, "%s\t%d\t%s\t\n", token.Hex(), i, converter.Hex())
		}
	}
	w.Flush()
}

func readAddress(reader *bufio.Reader) (common.Address, bool) {
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, false
	}
	if !common.IsHexAddress(input) {
		fmt.Printf(Red+"[ERROR] Invalid address: %s%s\n", input, Reset)
		return common.Address{}, false
	}
	return common.HexToAddress(input), true
}

func requireCaller(c *console) bool {
	if c.caller == (common.Address{}) {
		fmt.Println("\n" + Red + "[ERROR] No caller address configured. Restart with -caller." + Reset)
		return false
	}
	return true
}

func exitConsole() {
	fmt.Println(Yellow + "Exiting..." + Reset)
	os.Exit(0)
}

func parseFlags() (string, common.Address, error) {
	url := flag.String("url", "ws://127.0.0.1:9547", "Registry stream websocket URL.")
	caller := flag.String("caller", "", "Address mutations are attributed to (optional).")
	flag.Parse()

	if *caller == "" {
		return *url, common.Address{}, nil
	}
	if !common.IsHexAddress(*caller) {
		return "", common.Address{}, fmt.Errorf("invalid caller address: %s", *caller)
	}
	return *url, common.HexToAddress(*caller), nil
}
