// Command engine-cli is an interactive demo of the storage engine,
// generalized from kv/main.go's CLI: where that tool spoke a fixed
// uint64-key/[10]byte-value KV protocol against one unnamed tree, this one
// adds a tree name to every command, since an Engine can hold several named
// trees at once.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/relicore/storage-engine/bptree"
	"github.com/relicore/storage-engine/engine"
	"github.com/relicore/storage-engine/page"
)

func main() {
	args := os.Args[1:]
	if len(args) > 1 {
		help()
	}

	dir := ""
	if len(args) == 1 {
		dir = args[0]
	}

	label := dir
	if label == "" {
		label = "(in-memory)"
	}
	fmt.Printf("Opening storage engine @ %s\n", label)

	eng, err := engine.Open(engine.Config{WorkingDirectory: dir})
	if err != nil {
		abort(fmt.Sprintf("Error opening storage engine: %v\n", err))
	}

	repl := &repl{engine: eng}
	for {
		cmd := prompt(fmt.Sprintf("engine @ %s>", label))
		response, cont := repl.handle(cmd)
		fmt.Println(response)
		if !cont {
			os.Exit(0)
		}
	}
}

func prompt(label string) string {
	var out string

	r := bufio.NewReader(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, label+" ")
		out, _ = r.ReadString('\n')
		if strings.TrimSpace(out) != "" {
			break
		}
	}

	return strings.TrimSpace(out)
}

type repl struct {
	engine *engine.Engine
}

func (r *repl) handle(cmd string) (string, bool) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return r.help(), true
	}

	switch parts[0] {
	case "get":
		if len(parts) != 3 {
			return r.help(), true
		}
		tree, key, err := parseTreeAndKey(parts[1], parts[2])
		if err != nil {
			return err.Error(), true
		}

		rid, err := r.engine.Get(tree, key)
		if err != nil {
			return fmt.Sprintf("Error retrieving key: %v", err), true
		}
		return fmt.Sprintf("%s[%d] = {page: %d, slot: %d}", tree, key, rid.PageID, rid.SlotNum), true

	case "set":
		if len(parts) != 5 {
			return r.help(), true
		}
		tree, key, err := parseTreeAndKey(parts[1], parts[2])
		if err != nil {
			return err.Error(), true
		}

		pageID, err := strconv.ParseInt(parts[3], 10, 32)
		if err != nil {
			return fmt.Sprintf("Invalid page id %s: %v", parts[3], err), true
		}
		slot, err := strconv.ParseUint(parts[4], 10, 32)
		if err != nil {
			return fmt.Sprintf("Invalid slot %s: %v", parts[4], err), true
		}

		rid := bptree.RID{PageID: page.PageID(pageID), SlotNum: uint32(slot)}
		if err := r.engine.Put(tree, key, rid); err != nil {
			return fmt.Sprintf("Error storing key: %v", err), true
		}
		return fmt.Sprintf("Successfully stored %s[%d] = {page: %d, slot: %d}", tree, key, rid.PageID, rid.SlotNum), true

	case "del":
		if len(parts) != 3 {
			return r.help(), true
		}
		tree, key, err := parseTreeAndKey(parts[1], parts[2])
		if err != nil {
			return err.Error(), true
		}
		if err := r.engine.Delete(tree, key); err != nil {
			return fmt.Sprintf("Error deleting key: %v", err), true
		}
		return fmt.Sprintf("Deleted %s[%d]", tree, key), true

	case "scan":
		if len(parts) != 2 {
			return r.help(), true
		}
		rids, keys, err := r.engine.Scan(parts[1])
		if err != nil {
			return fmt.Sprintf("Error scanning tree: %v", err), true
		}
		var b strings.Builder
		for i, k := range keys {
			fmt.Fprintf(&b, "%d = {page: %d, slot: %d}\n", k, rids[i].PageID, rids[i].SlotNum)
		}
		return b.String(), true

	case "trees":
		return strings.Join(r.engine.Trees(), ", "), true

	case "debug":
		return r.engine.DebugString(), true

	case "exit":
		err := r.engine.Close()
		if err == nil {
			return "Storage engine closed", false
		}
		return fmt.Sprintf("Error closing storage engine: %v", err), false

	default:
		return r.help(), true
	}
}

func parseTreeAndKey(treeArg, keyArg string) (string, engine.Key, error) {
	key, err := strconv.ParseInt(keyArg, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid key %s: %w", keyArg, err)
	}
	return treeArg, key, nil
}

func (r *repl) help() string {
	out := "Valid commands:\n\n"
	out += "\tget <tree> <key>\n"
	out += "\tExample: get widgets 123\n\n"
	out += "\tset <tree> <key> <page> <slot>\n"
	out += "\tExample: set widgets 123 4 0\n\n"
	out += "\tdel <tree> <key>\n"
	out += "\tscan <tree>\n"
	out += "\ttrees\n"
	out += "\tdebug\n"
	out += "\texit\n"
	return out
}

func help() {
	fmt.Println("Usage: ./engine-cli [persistence_directory]")
	os.Exit(2)
}

func abort(msg string) {
	fmt.Printf("Error: %s\n", msg)
	os.Exit(1)
}
