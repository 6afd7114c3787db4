// Package main is the mlqlc command-line compiler: it reads an IR
// program as JSON and emits either a SQL statement or a Substrait plan,
// grounded by a schema catalog supplied inline or from a TOML/MySQL
// source (spec §6.3's compile_sql/compile_substrait entry points).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mlql/catalog"
	"mlql/catalog/mysqlcatalog"
	"mlql/catalog/tomlcatalog"
	"mlql/compiler"
	"mlql/compiler/sql"
	"mlql/compiler/substrait"
	"mlql/ir"
	"mlql/schema"
)

type compileFlags struct {
	programFile  string
	catalogFile  string
	inlineSchema string
	mysqlDSN     string
	backend      string
	verbose      bool
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "mlqlc",
		Short: "MLQL pipeline compiler",
	}

	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(fingerprintCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func compileCmd() *cobra.Command {
	flags := &compileFlags{}
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile an IR program to SQL or a Substrait plan",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCompile(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.programFile, "program", "p", "", "Path to the IR program JSON (default: stdin)")
	cmd.Flags().StringVar(&flags.catalogFile, "catalog-file", "", "Path to a TOML catalog file")
	cmd.Flags().StringVar(&flags.inlineSchema, "inline-schema", "", "A TOML catalog document given inline, same shape as --catalog-file")
	cmd.Flags().StringVar(&flags.mysqlDSN, "mysql-dsn", "", "go-sql-driver/mysql DSN for a live catalog")
	cmd.Flags().StringVarP(&flags.backend, "backend", "b", "sql", "Target backend: sql or substrait")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log a Debug/Trace translation trace to stderr")

	return cmd
}

func fingerprintCmd() *cobra.Command {
	var programFile string
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the SHA-256 fingerprint of an IR program",
		RunE: func(_ *cobra.Command, _ []string) error {
			program, err := readProgram(programFile)
			if err != nil {
				return err
			}
			sum := ir.Fingerprint(program)
			fmt.Printf("%x\n", sum)
			return nil
		},
	}
	cmd.Flags().StringVarP(&programFile, "program", "p", "", "Path to the IR program JSON (default: stdin)")
	return cmd
}

func runCompile(flags *compileFlags) error {
	program, err := readProgram(flags.programFile)
	if err != nil {
		return err
	}

	provider, err := resolveProvider(flags)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if flags.verbose {
		logger.SetLevel(logrus.TraceLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	opt := compiler.WithLogger(logrus.NewEntry(logger))

	var out string
	switch flags.backend {
	case "sql":
		out, err = sql.CompileSQL(program, provider, opt)
	case "substrait":
		out, err = substrait.CompileSubstrait(program, provider, opt)
	default:
		return fmt.Errorf("unknown backend %q (want sql or substrait)", flags.backend)
	}
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	fmt.Println(out)
	return nil
}

func resolveProvider(flags *compileFlags) (schema.Provider, error) {
	set := 0
	for _, v := range []string{flags.catalogFile, flags.inlineSchema, flags.mysqlDSN} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("--catalog-file, --inline-schema, and --mysql-dsn are mutually exclusive")
	}

	switch {
	case flags.catalogFile != "":
		return tomlcatalog.ParseFile(flags.catalogFile)
	case flags.inlineSchema != "":
		cat, err := tomlcatalog.Parse(strings.NewReader(flags.inlineSchema))
		if err != nil {
			return nil, fmt.Errorf("--inline-schema: %w", err)
		}
		return catalog.NewStatic(cat.Tables()...), nil
	case flags.mysqlDSN != "":
		return mysqlcatalog.Open(flags.mysqlDSN)
	default:
		return catalog.NewStatic(), nil
	}
}

func readProgram(path string) (*ir.Program, error) {
	var data []byte
	var err error
	if path == "" {
		dec := json.NewDecoder(os.Stdin)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("reading program from stdin: %w", err)
		}
		data = raw
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading program file %q: %w", path, err)
		}
	}
	return ir.Decode(data)
}
