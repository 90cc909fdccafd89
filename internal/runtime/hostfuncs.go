package runtime

import (
	"context"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/tsuparser/internal/logger"
)

// fileTree is the syntax tree of the file a rule runs against. Node
// arguments are checked against root so text and types are always read
// from the tree they belong to.
type fileTree struct {
	src    []byte
	lang   *sitter.Language
	root   *sitter.Node
	typeAt func(*sitter.Node) (string, error)
}

func newFileTree(fc FileContext) *fileTree {
	return &fileTree{
		src:    []byte(fc.Source),
		lang:   fc.Language,
		root:   fc.Root,
		typeAt: fc.TypeAt,
	}
}

// rootOf walks a node up to its root via Parent().
func rootOf(node *sitter.Node) *sitter.Node {
	for node.Parent() != nil {
		node = node.Parent()
	}
	return node
}

// node unwraps a proxied node argument of fn.
func (ft *fileTree) node(fn string, arg object.Object) (*sitter.Node, *object.Error) {
	if ft.root == nil {
		return nil, object.Errorf("%s: no syntax tree for this file", fn)
	}
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	if !rootOf(node).Equal(ft.root) {
		return nil, object.Errorf("%s: node is not part of this file", fn)
	}
	return node, nil
}

// makeNodeTextFn creates the "node_text" host function.
//
// node_text(node) → string
//
// Exists because Risor's proxy system cannot convert strings to []byte
// for node.Content([]byte).
func makeNodeTextFn(ft *fileTree) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := ft.node("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewString(node.Content(ft.src))
	})
}

// makeTypeAtFn creates the "type_at" host function. It renders the type
// the checker gives a node, in the same form as the export descriptors.
//
// type_at(node) → string or nil
//
// Nodes without a type, such as statements and punctuation, give nil.
func makeTypeAtFn(ft *fileTree) *object.Builtin {
	return object.NewBuiltin("type_at", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("type_at", 1, len(args))
		}
		node, errObj := ft.node("type_at", args[0])
		if errObj != nil {
			return errObj
		}
		if ft.typeAt == nil {
			return object.Errorf("type_at: no type information for this file")
		}
		typ, err := ft.typeAt(node)
		if err != nil {
			return object.Nil
		}
		return object.NewString(typ)
	})
}

// makeQueryFn creates the "query" host function.
//
// query(pattern, node) → []map[string]any
//
// Each map has capture names as keys and proxied Nodes as values.
func makeQueryFn(ft *fileTree) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}

		patternStr, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("query: pattern must be a string, got %s", args[0].Type())
		}

		node, errObj := ft.node("query", args[1])
		if errObj != nil {
			return errObj
		}

		q, err := sitter.NewQuery([]byte(patternStr.Value()), ft.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		var results []object.Object
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, ft.src)

			matchMap := make(map[string]object.Object)
			for _, capture := range match.Captures {
				name := q.CaptureNameForId(capture.Index)
				nodeP, err := object.NewProxy(capture.Node)
				if err != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, err)
				}
				matchMap[name] = nodeP
			}
			results = append(results, object.NewMap(matchMap))
		}

		if results == nil {
			results = []object.Object{}
		}
		return object.NewList(results)
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	log    logger.Logger
	script string
}

func (l *logObject) Info(msg string) {
	l.log.Info(msg, logger.F("script", l.script))
}

func (l *logObject) Warn(msg string) {
	l.log.Warn(msg, logger.F("script", l.script))
}

func (l *logObject) Error(msg string) {
	l.log.Error(msg, logger.F("script", l.script))
}
