package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kr/pretty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vito/xtype/pkg/ioctx"
	"github.com/vito/xtype/pkg/store"
	"github.com/vito/xtype/pkg/universe"
	"github.com/vito/xtype/pkg/xtype"
)

// session is a loaded universe and an engine over it for one command.
type session struct {
	loaded *universe.Loaded
	engine *xtype.Engine
	out    *printer
}

func (cfg *Config) session(cmd *cobra.Command, opts ...xtype.Option) (*session, error) {
	l, err := cfg.load()
	if err != nil {
		return nil, err
	}
	logger := ioctx.LoggerFromContext(cmd.Context())
	opts = append([]xtype.Option{
		xtype.WithLogger(logger),
		xtype.WithSink(xtype.LogSink{Logger: logger}),
	}, opts...)
	return &session{
		loaded: l,
		engine: l.Engine(opts...),
		out:    newPrinter(ioctx.StdoutFromContext(cmd.Context())),
	}, nil
}

// parse reads a type argument, in the scope of class when it is set.
func (s *session) parse(expr string, class string) (xtype.Handle, error) {
	if class == "" {
		return s.loaded.Parse(expr)
	}
	if _, ok := s.loaded.Universe.Class(xtype.ClassID(class)); !ok {
		return xtype.NoHandle, fmt.Errorf("class %s is not defined", class)
	}
	scope := s.loaded.Scope()
	scope.Class = xtype.ClassID(class)
	return scope.Parse(expr)
}

func isaCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "isa LEFT RIGHT",
		Short: "Report how a value of LEFT relates to RIGHT",
		Long: `Report whether a value of type LEFT can be assigned to RIGHT.

The answer is IS_A for declared ancestry, IS_A_WEAK when assignment only
holds through variance or matching methods, and INCOMPATIBLE otherwise.
Either argument may be a type expression or a name from the universe's
types section.`,
		Example: `  xtype isa Dog Animal
  xtype isa 'List<Dog>' 'List<Animal>'
  xtype isa pets animals`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			left, err := s.parse(args[0], "")
			if err != nil {
				return err
			}
			right, err := s.parse(args[1], "")
			if err != nil {
				return err
			}
			rel, err := s.engine.Relation(left, right)
			if err != nil {
				return fmt.Errorf("%s -> %s: %w", s.engine.Format(left), s.engine.Format(right), err)
			}
			s.out.relation(s.engine, left, right, rel)
			return nil
		},
	}
}

func infoCmd(cfg *Config) *cobra.Command {
	var (
		access string
		dump   bool
	)
	cmd := &cobra.Command{
		Use:   "info TYPE",
		Short: "Show the flattened members of a type",
		Long: `Show the type parameters, contributing classes, properties and method
chains of a type. Method chains list the bodies of each signature from the
most specific to the least.`,
		Example: `  xtype info Dog
  xtype info 'Box<Square>' --access private`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			h, err := s.parse(args[0], "")
			if err != nil {
				return err
			}
			view, err := xtype.ParseAccess(access)
			if err != nil {
				return err
			}
			h = xtype.NewAccess(s.loaded.Arena, h, view)
			info, err := s.engine.TypeInfo(h)
			if err != nil {
				return err
			}
			s.out.info(s.engine, info)
			if dump {
				pretty.Fprintf(s.out.w, "%# v\n", info)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&access, "access", "public", "View the type through public, protected, private or struct access")
	cmd.Flags().BoolVar(&dump, "dump", false, "Dump the raw TypeInfo structure")
	return cmd
}

func resolveCmd(cfg *Config) *cobra.Command {
	var (
		class  string
		actual string
		formal string
	)
	cmd := &cobra.Command{
		Use:   "resolve TYPE",
		Short: "Resolve the formal types in a type",
		Long: `Print TYPE with its missing type parameters filled in from their
constraints. With --actual and --formal, print the type that the formal
parameter takes when TYPE is matched against the actual type instead.
A formal type on its own resolves to its constraint.`,
		Example: `  xtype resolve List
  xtype resolve --in List Element
  xtype resolve --in List 'List<Element>' --actual 'List<Dog>' --formal Element`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			e := s.engine
			h, err := s.parse(args[0], class)
			if err != nil {
				return err
			}
			switch {
			case actual != "" || formal != "":
				if actual == "" || formal == "" {
					return fmt.Errorf("--actual and --formal go together")
				}
				a, err := s.parse(actual, "")
				if err != nil {
					return err
				}
				got, ok := e.ResolveTypeParameter(h, a, formal)
				if !ok {
					return fmt.Errorf("%s does not determine %s in %s", e.Format(a), formal, e.Format(h))
				}
				s.out.printf("%s\n", e.Format(got))
			case e.IsFormalType(h):
				s.out.printf("%s\n", e.Format(e.Constraint(h)))
			default:
				s.out.printf("%s\n", e.Format(e.NormalizeParameters(h)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&class, "in", "", "Parse TYPE inside this class, so its type parameters are in scope")
	cmd.Flags().StringVar(&actual, "actual", "", "The actual type to match TYPE against")
	cmd.Flags().StringVar(&formal, "formal", "", "The formal parameter to resolve")
	return cmd
}

func encodeCmd(cfg *Config) *cobra.Command {
	var (
		db   string
		name string
	)
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Save the universe's named types to a snapshot database",
		Example: `  xtype encode --db types.db
  xtype encode --db types.db --name release`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			l := s.loaded
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(l.Path), filepath.Ext(l.Path))
			}
			bindings := map[string]xtype.Handle{}
			logger := ioctx.LoggerFromContext(ctx)
			for _, n := range l.TypeNames() {
				h := l.Types[n]
				if xtype.ContainsUnresolved(l.Arena, h) {
					logger.Warn("skipping unresolved type", "name", n, "type", s.engine.Format(h))
					continue
				}
				bindings[n] = h
			}

			st, err := store.Open(ctx, db)
			if err != nil {
				return err
			}
			defer st.Close()
			snap, err := st.Save(ctx, name, l.Arena, bindings)
			if err != nil {
				return err
			}
			s.out.printf("saved %s as %s: %d records, %d types\n", snap.ID, snap.Name, snap.Records, len(bindings))
			return nil
		},
	}
	cmd.Flags().StringVar(&db, "db", "xtype.db", "Snapshot database")
	cmd.Flags().StringVar(&name, "name", "", "Snapshot name (default: the universe file name)")
	return cmd
}

func decodeCmd(cfg *Config) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "decode SNAPSHOT",
		Short: "Print the named types of a saved snapshot",
		Long: `Load a snapshot by id, or the latest snapshot with the given name, and
print its named types as seen by the current universe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := cfg.session(cmd)
			if err != nil {
				return err
			}
			st, err := store.Open(ctx, db)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := uuid.Parse(args[0])
			if err != nil {
				snap, err := st.Latest(ctx, args[0])
				if err != nil {
					return err
				}
				id = snap.ID
			}
			bindings, err := st.Load(ctx, id, s.loaded.Arena)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(bindings))
			for n := range bindings {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				s.out.printf("%s = %s\n", n, s.out.style(typeStyle, s.engine.Format(bindings[n])))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&db, "db", "xtype.db", "Snapshot database")
	return cmd
}

func checkCmd(cfg *Config) *cobra.Command {
	var jobs int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Flatten every class and report diagnostics",
		Long: `Build the TypeInfo of every class in the universe and report the
conflicts found along the way, along with named types that refer to
undefined classes. Exits non-zero when there is anything to report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			diags := &xtype.Collector{}
			s, err := cfg.session(cmd, xtype.WithSink(diags))
			if err != nil {
				return err
			}
			l, e := s.loaded, s.engine

			classes := l.Universe.Classes()
			eg := new(errgroup.Group)
			if jobs > 0 {
				eg.SetLimit(jobs)
			}
			for _, def := range classes {
				eg.Go(func() error {
					_, err := e.TypeInfo(xtype.NewClass(l.Arena, def.ID))
					return err
				})
			}
			if err := eg.Wait(); err != nil {
				return err
			}

			// builds running side by side may both report a conflict
			reported := uniqueDiagnostics(diags.Diagnostics)
			for _, d := range reported {
				s.out.diagnostic(d)
			}
			unresolved := 0
			for _, n := range l.TypeNames() {
				if h := l.Types[n]; xtype.ContainsUnresolved(l.Arena, h) {
					s.out.printf("%s: %s is unresolved\n", n, e.Format(h))
					unresolved++
				}
			}
			s.out.printf("checked %d classes: %s, %s\n", len(classes),
				plural(len(reported), "diagnostic"), plural(unresolved, "unresolved type"))
			if diags.HasErrors() || unresolved > 0 {
				return fmt.Errorf("check failed")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 8, "Classes to flatten at once")
	return cmd
}

func uniqueDiagnostics(ds []xtype.Diagnostic) []xtype.Diagnostic {
	seen := map[xtype.Diagnostic]bool{}
	var out []xtype.Diagnostic
	for _, d := range ds {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Context != out[j].Context {
			return out[i].Context < out[j].Context
		}
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Message < out[j].Message
	})
	return out
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
