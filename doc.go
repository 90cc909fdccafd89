// Package tsuparser is a long-lived analysis service for TypeScript script
// files. For each requested file it type-checks the project incrementally,
// transpiles the file to JavaScript and reports the reflection metadata a
// host application needs to bind the script: exported function signatures
// and the host object types the file depends on.
//
// # Pipeline
//
// A request names one file. The [Service] then:
//
//  1. Marks the file as analysed in the version store, which bumps its
//     version so the session sees it as changed.
//  2. Rebuilds the program through the incremental session, reparsing only
//     files whose version or content changed.
//  3. Collects option, syntactic and semantic diagnostics. Any diagnostic
//     turns the result into a failure: {"errors": [...]}.
//  4. Emits the file, then extracts exported functions and discovers host
//     object dependencies.
//  5. Optionally runs a Risor rules script over the result.
//
// # Protocol
//
// [Service.Serve] reads one JSON request per line, such as
//
//	{"file": "/proj/Scripts/Foo.ts"}
//
// and answers each with a line of the form
//
//	RESPONSE_TAG {"fileName":"Foo.ts","name":"Foo",...}
//
// Responses are cached per path for the life of the process. The line EXIT
// ends the loop. Any failure other than type-check diagnostics is fatal: the
// message is written as a plain line and Serve returns a [FatalError].
//
// # Exported functions
//
// Only exported top-level function declarations with a body are reported.
// A function whose return type renders as a union is rejected with a
// "[TSU] file(line,char): Disallowed union return type (...)" error and
// left out of the exports. Types are reported as a base name plus the
// number of array dimensions stripped from it.
//
// # Dependencies
//
// Every node of the file whose type is the host base type (UObject unless
// configured otherwise), or derives from it, contributes that type's name.
// Constructor references count as their instance type; literal and
// callable types are ignored.
package tsuparser
