package argstruct

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/arikkfir/justest"
	"github.com/goccy/go-json"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	With(t).Verify(os.WriteFile(path, []byte(content), 0o600)).Will(BeNil()).OrFail()
	return path
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-struct targets", func(t *testing.T) {
		t.Parallel()
		With(t).Verify(New(nil, Spec{})).Will(Fail(`^invalid schema: target must be a non-nil pointer to a struct, got <nil>$`)).OrFail()
		With(t).Verify(New(struct{}{}, Spec{})).Will(Fail(`target must be a non-nil pointer to a struct`)).OrFail()
		With(t).Verify(New(ptrOf(5), Spec{})).Will(Fail(`target must be a non-nil pointer to a struct`)).OrFail()
	})

	t.Run("rejects unknown config formats", func(t *testing.T) {
		t.Parallel()
		With(t).Verify(New(&struct{}{}, Spec{ConfigFormat: "xml"})).Will(Fail(`^unsupported config format: 'xml'`)).OrFail()
	})

	t.Run("surfaces schema definition errors", func(t *testing.T) {
		t.Parallel()
		With(t).Verify(New(&struct{ F map[string]string }{}, Spec{})).Will(Fail(`^invalid schema: .*unsupported field type for 'F'`)).OrFail()
	})

	t.Run("strict mode fails on malformed config files", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, "bad.json", "{")
		spec := Spec{ConfigFiles: []string{path}, ConfigFormat: "json", StrictConfig: true}
		With(t).Verify(New(&struct{}{}, spec)).Will(Fail(`^malformed config file`)).OrFail()
	})

	t.Run("reports loaded config files", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, "app.ini", "port = 9000\n")
		p, err := New(&struct{ Port int }{}, Spec{ConfigFiles: []string{path, "/does/not/exist.ini"}})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.LoadedConfigFiles()).Will(EqualTo([]string{path})).OrFail()
		With(t).Verify(p.Config()).Will(EqualTo(Mapping{"port": "9000"})).OrFail()
	})
}

func TestParsePrecedence(t *testing.T) {
	t.Parallel()

	type serverConfig struct {
		Port  int `env:"PORT"`
		Debug bool
		Name  string
	}

	newParser := func(t *testing.T, configContent string) (*Parser, *serverConfig) {
		t.Helper()
		cfg := &serverConfig{Port: 8080}
		spec := Spec{Name: "srv"}
		if configContent != "" {
			spec.ConfigFiles = []string{writeConfigFile(t, "srv.ini", configContent)}
		}
		p, err := New(cfg, spec)
		With(t).Verify(err).Will(BeNil()).OrFail()
		return p, cfg
	}

	t.Run("compiled-in default applies when no source provides a value", func(t *testing.T) {
		t.Parallel()
		p, cfg := newParser(t, "")
		With(t).Verify(p.Parse(nil, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(8080)).OrFail()
		With(t).Verify(cfg.Debug).Will(EqualTo(false)).OrFail()
	})

	t.Run("config file overrides the compiled-in default", func(t *testing.T) {
		t.Parallel()
		p, cfg := newParser(t, "port = 9000\nname = from-config\n")
		With(t).Verify(p.Parse([]string{"--debug"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(9000)).OrFail()
		With(t).Verify(cfg.Name).Will(EqualTo("from-config")).OrFail()
		With(t).Verify(cfg.Debug).Will(EqualTo(true)).OrFail()
	})

	t.Run("environment overrides the config file", func(t *testing.T) {
		t.Parallel()
		p, cfg := newParser(t, "port = 9000\n")
		With(t).Verify(p.Parse(nil, map[string]string{"PORT": "7000"})).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(7000)).OrFail()
	})

	t.Run("command line overrides everything", func(t *testing.T) {
		t.Parallel()
		p, cfg := newParser(t, "port = 9000\n")
		With(t).Verify(p.Parse([]string{"--port=6000"}, map[string]string{"PORT": "7000"})).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(6000)).OrFail()
	})

	t.Run("last occurrence of a scalar flag wins", func(t *testing.T) {
		t.Parallel()
		p, cfg := newParser(t, "")
		With(t).Verify(p.Parse([]string{"--port=1", "--port=2"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(2)).OrFail()
	})

	t.Run("repeated parses are idempotent", func(t *testing.T) {
		t.Parallel()
		p, cfg := newParser(t, "port = 9000\n")
		With(t).Verify(p.Parse([]string{"--port=6000"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(6000)).OrFail()
		With(t).Verify(p.Parse(nil, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(9000)).OrFail()
	})
}

func TestParseBooleans(t *testing.T) {
	t.Parallel()

	t.Run("presence flag stores the opposite of its preset", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Debug bool
			Cache bool
		}{Cache: true}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--debug", "--cache"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Debug).Will(EqualTo(true)).OrFail()
		With(t).Verify(cfg.Cache).Will(EqualTo(false)).OrFail()
	})

	t.Run("presence flag from environment and config", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Debug bool `env:"DEBUG"`
			Cache bool
		}{}
		path := writeConfigFile(t, "t.ini", "cache = yes\n")
		p, err := New(cfg, Spec{Name: "t", ConfigFiles: []string{path}})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, map[string]string{"DEBUG": "on"})).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Debug).Will(EqualTo(true)).OrFail()
		With(t).Verify(cfg.Cache).Will(EqualTo(true)).OrFail()
	})

	t.Run("tri-state stays nil when absent", func(t *testing.T) {
		t.Parallel()
		cfg := &struct{ Follow *bool }{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Follow).Will(BeNil()).OrFail()
	})

	t.Run("tri-state takes explicit truthy and falsy tokens", func(t *testing.T) {
		t.Parallel()
		cfg := &struct{ Follow *bool }{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--follow=yes"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(*cfg.Follow).Will(EqualTo(true)).OrFail()
		With(t).Verify(p.Parse([]string{"--follow=no"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(*cfg.Follow).Will(EqualTo(false)).OrFail()
	})
}

func TestParseSequences(t *testing.T) {
	t.Parallel()

	t.Run("compound values and repeated occurrences accumulate", func(t *testing.T) {
		t.Parallel()
		cfg := &struct{ Tags []string }{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--tags=a,b", "--tags=c"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Tags).Will(EqualTo([]string{"a", "b", "c"})).OrFail()
	})

	t.Run("sets deduplicate their elements", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			IDs map[int]struct{} `name:"ids"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--ids=1,2,2,3"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.IDs).Will(EqualTo(map[int]struct{}{1: {}, 2: {}, 3: {}})).OrFail()
	})

	t.Run("tuples demand their exact arity", func(t *testing.T) {
		t.Parallel()
		cfg := &struct{ Range [2]int }{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--range=1,5"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Range).Will(EqualTo([2]int{1, 5})).OrFail()
		With(t).Verify(p.Parse([]string{"--range=1"}, nil)).Will(Fail(`expected 2 values, got 1`)).OrFail()
	})

	t.Run("environment sequences use literal list syntax", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			IDs []int `name:"ids" env:"IDS"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, map[string]string{"IDS": `[1, 2, 3]`})).Will(BeNil()).OrFail()
		With(t).Verify(cfg.IDs).Will(EqualTo([]int{1, 2, 3})).OrFail()
		With(t).Verify(p.Parse(nil, map[string]string{"IDS": `1`})).Will(Fail(`^invalid value '1' for flag 'ids':`)).OrFail()
	})

	t.Run("config sequences use literal list syntax", func(t *testing.T) {
		t.Parallel()
		cfg := &struct{ Tags []string }{}
		path := writeConfigFile(t, "t.ini", `tags = ["x", "y"]`+"\n")
		p, err := New(cfg, Spec{Name: "t", ConfigFiles: []string{path}})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Tags).Will(EqualTo([]string{"x", "y"})).OrFail()
	})

	t.Run("bare config scalar for a sequence field is rejected", func(t *testing.T) {
		t.Parallel()
		cfg := &struct{ Tags []string }{}
		path := writeConfigFile(t, "t.ini", "tags = solo\n")
		p, err := New(cfg, Spec{Name: "t", ConfigFiles: []string{path}})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, nil)).Will(Fail(`^config key 'tags' expected sequence, got string: solo$`)).OrFail()
	})

	t.Run("per-element choices apply to sequences", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Colors []string `choices:"red,green"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--colors=red,blue"}, nil)).Will(Fail(`^invalid choice 'blue' for flag 'colors': must be one of red, green$`)).OrFail()
	})
}

func TestParsePositionals(t *testing.T) {
	t.Parallel()

	t.Run("positional list consumes all leftover tokens", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Files []string `args:"true"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"a", "b", "c"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Files).Will(EqualTo([]string{"a", "b", "c"})).OrFail()
	})

	t.Run("optional scalar yields to later minimums", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Target string   `args:"true" arity:"?"`
			Files  []string `args:"true"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"prod", "x", "y"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Target).Will(EqualTo("prod")).OrFail()
		With(t).Verify(cfg.Files).Will(EqualTo([]string{"x", "y"})).OrFail()
	})

	t.Run("tokens after the separator are always positional", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Files []string `args:"true"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--", "--not-a-flag", "b"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Files).Will(EqualTo([]string{"--not-a-flag", "b"})).OrFail()
	})

	t.Run("leftover tokens are an error", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			File string `args:"true"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"a", "b"}, nil)).Will(Fail(`^unexpected positional arguments: b$`)).OrFail()
	})
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown flag", func(t *testing.T) {
		t.Parallel()
		p, err := New(&struct{ Port int }{}, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--bogus=1"}, nil)).Will(Fail(`^unknown flag: --bogus$`)).OrFail()
	})

	t.Run("missing required flag", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Name string `required:"true"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, nil)).Will(Fail(`^required flag is missing: --name$`)).OrFail()
		With(t).Verify(p.Parse([]string{"--name=x"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Name).Will(EqualTo("x")).OrFail()
	})

	t.Run("invalid scalar choice", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Color string `choices:"red,green"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--color=blue"}, nil)).Will(Fail(`^invalid choice 'blue' for flag 'color': must be one of red, green$`)).OrFail()
	})

	t.Run("conversion failure names the flag", func(t *testing.T) {
		t.Parallel()
		p, err := New(&struct{ Port int }{}, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--port=x"}, nil)).Will(Fail(`^invalid value 'x' for flag 'port': invalid syntax$`)).OrFail()
	})

	t.Run("missing required flag leaves the target untouched", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Name string `required:"true"`
			Port int
		}{Port: 8080}
		path := writeConfigFile(t, "app.ini", "port = 9000\n")
		p, err := New(cfg, Spec{Name: "t", ConfigFiles: []string{path}})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, nil)).Will(Fail(`^required flag is missing: --name$`)).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(8080)).OrFail()
		With(t).Verify(p.Parse([]string{"--name=x"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(9000)).OrFail()
	})

	t.Run("shared flag name with conflicting arities", func(t *testing.T) {
		t.Parallel()
		type aritySub struct {
			Vals []string `arity:"*"`
		}
		cfg := &struct {
			Vals []string `arity:"+"`
			Sub  *aritySub `cmd:"sub"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"sub"}, nil)).Will(Fail(`^flag 'vals' has incompatible arities: '\+' vs '\*'$`)).OrFail()
	})

	t.Run("shared flag name with conflicting choice lists", func(t *testing.T) {
		t.Parallel()
		type choiceSub struct {
			Mode string `choices:"a,c" default:"a"`
		}
		cfg := &struct {
			Mode string `choices:"a,b" default:"a"`
			Sub  *choiceSub `cmd:"sub"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"sub"}, nil)).Will(Fail(`^flag 'mode' has incompatible choice lists: \[a, b\] vs \[a, c\]$`)).OrFail()
	})
}

func TestParseFlagSurface(t *testing.T) {
	t.Parallel()

	t.Run("aliases are accepted", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Port int `alias:"p"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"-p=9000"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Port).Will(EqualTo(9000)).OrFail()
	})

	t.Run("auto env var prefix derives variables for untagged flags", func(t *testing.T) {
		t.Parallel()
		cfg := &struct{ ServerPort int }{}
		p, err := New(cfg, Spec{Name: "t", AutoEnvVarPrefix: "APP_"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, map[string]string{"APP_SERVER_PORT": "3000"})).Will(BeNil()).OrFail()
		With(t).Verify(cfg.ServerPort).Will(EqualTo(3000)).OrFail()
	})

	t.Run("secret fields resolve like regular ones", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Token Secret `env:"TOKEN"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, map[string]string{"TOKEN": "s3cr3t"})).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Token.Reveal()).Will(EqualTo("s3cr3t")).OrFail()
	})

	t.Run("optional scalars allocate on demand", func(t *testing.T) {
		t.Parallel()
		cfg := &struct{ Limit *int }{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Limit).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--limit=5"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(*cfg.Limit).Will(EqualTo(5)).OrFail()
	})

	t.Run("durations parse from any source", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Timeout time.Duration `env:"TIMEOUT"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, map[string]string{"TIMEOUT": "90s"})).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Timeout).Will(EqualTo(90 * time.Second)).OrFail()
	})
}

func TestParseGroups(t *testing.T) {
	t.Parallel()

	type dbGroup struct {
		Host string
		Port int
	}
	type appConfig struct {
		Name string
		DB   dbGroup `title:"Database"`
	}

	t.Run("grouped flags resolve from config sections and prefixed flags", func(t *testing.T) {
		t.Parallel()
		cfg := &appConfig{}
		path := writeConfigFile(t, "app.ini", "name = svc\n\n[db]\nhost = db.local\nport = 5432\n")
		p, err := New(cfg, Spec{Name: "t", ConfigFiles: []string{path}})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--db-port=6543"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Name).Will(EqualTo("svc")).OrFail()
		With(t).Verify(cfg.DB.Host).Will(EqualTo("db.local")).OrFail()
		With(t).Verify(cfg.DB.Port).Will(EqualTo(6543)).OrFail()
	})

	t.Run("groups inside sub-commands do not read config sections", func(t *testing.T) {
		t.Parallel()
		type authGroup struct {
			Token string `default:"tok"`
		}
		type deployCmd struct {
			Auth authGroup `title:"Auth"`
		}
		cfg := &struct {
			Name   string
			Deploy *deployCmd `cmd:"deploy"`
		}{Name: "svc"}
		path := writeConfigFile(t, "app.ini", "[auth]\ntoken = sneaky\n")
		p, err := New(cfg, Spec{Name: "t", ConfigFiles: []string{path}})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"deploy"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Deploy.Auth.Token).Will(EqualTo("tok")).OrFail()
		With(t).Verify(p.Parse([]string{"deploy", "--auth-token=cli"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Deploy.Auth.Token).Will(EqualTo("cli")).OrFail()
	})
}

type commitCmd struct {
	Message string `name:"message"`
	All     bool
}

type pushCmd struct {
	Force  bool
	Commit *commitCmd `cmd:"commit" desc:"Record changes."`
}

type gitConfig struct {
	Verbose bool
	Push    *pushCmd `cmd:"push" desc:"Update remote refs."`
}

func TestParseSubCommands(t *testing.T) {
	t.Parallel()

	t.Run("discriminators select the sub-schema chain", func(t *testing.T) {
		t.Parallel()
		cfg := &gitConfig{}
		p, err := New(cfg, Spec{Name: "git"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"push", "--force", "--verbose"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(p.Selected()).Will(EqualTo([]string{"push"})).OrFail()
		With(t).Verify(cfg.Verbose).Will(EqualTo(true)).OrFail()
		With(t).Verify(cfg.Push.Force).Will(EqualTo(true)).OrFail()
		With(t).Verify(cfg.Push.Commit).Will(BeNil()).OrFail()
	})

	t.Run("nested chains descend further", func(t *testing.T) {
		t.Parallel()
		cfg := &gitConfig{}
		p, err := New(cfg, Spec{Name: "git"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"push", "commit", "--message=wip"}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(p.Selected()).Will(EqualTo([]string{"push", "commit"})).OrFail()
		With(t).Verify(cfg.Push.Commit.Message).Will(EqualTo("wip")).OrFail()
	})

	t.Run("sub-schema flags are unknown outside their chain", func(t *testing.T) {
		t.Parallel()
		cfg := &gitConfig{}
		p, err := New(cfg, Spec{Name: "git"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--force"}, nil)).Will(Fail(`^unknown flag: --force$`)).OrFail()
	})
}

func TestValue(t *testing.T) {
	t.Parallel()

	type dbGroup struct {
		Host string
	}
	type rootConfig struct {
		Port int
		DB   dbGroup
		Push *pushCmd `cmd:"push"`
	}

	newParsed := func(t *testing.T, args []string) *Parser {
		t.Helper()
		p, err := New(&rootConfig{Port: 8080}, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(args, nil)).Will(BeNil()).OrFail()
		return p
	}

	t.Run("top-level and grouped paths", func(t *testing.T) {
		t.Parallel()
		p := newParsed(t, []string{"--db-host=h"})
		port, err := p.Value("port")
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(port).Will(EqualTo(8080)).OrFail()
		host, err := p.Value("db.host")
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(host).Will(EqualTo("h")).OrFail()
	})

	t.Run("selected sub-schema paths resolve", func(t *testing.T) {
		t.Parallel()
		p := newParsed(t, []string{"push", "--force"})
		force, err := p.Value("push.force")
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(force).Will(EqualTo(true)).OrFail()
	})

	t.Run("unselected sub-schema paths were not parsed", func(t *testing.T) {
		t.Parallel()
		p := newParsed(t, nil)
		With(t).Verify(p.Value("push.force")).Will(Fail(`^attribute 'push\.force' was not parsed$`)).OrFail()
	})

	t.Run("unknown paths", func(t *testing.T) {
		t.Parallel()
		p := newParsed(t, nil)
		With(t).Verify(p.Value("nope")).Will(Fail(`^unknown field 'nope' in 'nope'$`)).OrFail()
		With(t).Verify(p.Value("db.nope")).Will(Fail(`^unknown field 'nope' in group 'db'$`)).OrFail()
	})
}

func TestParseConfigFlag(t *testing.T) {
	t.Parallel()

	t.Run("mapping flag loads the file it points at", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Config Mapping `name:"config" format:"json"`
		}{}
		path := writeConfigFile(t, "extra.json", `{"port": 9000}`)
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse([]string{"--config=" + path}, nil)).Will(BeNil()).OrFail()
		With(t).Verify(cfg.Config).Will(EqualTo(Mapping{"port": json.Number("9000")})).OrFail()
	})

	t.Run("required mapping flag with no loadable file fails", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Config Mapping `name:"config" required:"true"`
		}{}
		p, err := New(cfg, Spec{Name: "t"})
		With(t).Verify(err).Will(BeNil()).OrFail()
		With(t).Verify(p.Parse(nil, nil)).Will(Fail(`^flag '--config' is required but no config file could be loaded`)).OrFail()
	})

	t.Run("bad mapping format is a definition error", func(t *testing.T) {
		t.Parallel()
		cfg := &struct {
			Config Mapping `name:"config" format:"xml"`
		}{}
		With(t).Verify(New(cfg, Spec{Name: "t"})).Will(Fail(`unsupported config format: 'xml'`)).OrFail()
	})
}

func TestSanitizeEnv(t *testing.T) {
	cfg := &struct {
		Token Secret `env:"ARGSTRUCT_TEST_TOKEN"`
		Port  int    `env:"ARGSTRUCT_TEST_PORT"`
	}{}
	p, err := New(cfg, Spec{Name: "t"})
	With(t).Verify(err).Will(BeNil()).OrFail()

	t.Setenv("ARGSTRUCT_TEST_TOKEN", "s3cr3t")
	t.Setenv("ARGSTRUCT_TEST_PORT", "9000")
	With(t).Verify(p.Parse(nil, EnvVarsArrayToMap(os.Environ()))).Will(BeNil()).OrFail()
	With(t).Verify(cfg.Token.Reveal()).Will(EqualTo("s3cr3t")).OrFail()
	With(t).Verify(cfg.Port).Will(EqualTo(9000)).OrFail()

	p.SanitizeEnv(true)
	With(t).Verify(os.Getenv("ARGSTRUCT_TEST_TOKEN")).Will(BeEmpty()).OrFail()
	With(t).Verify(os.Getenv("ARGSTRUCT_TEST_PORT")).Will(EqualTo("9000")).OrFail()

	p.SanitizeEnv(false)
	With(t).Verify(os.Getenv("ARGSTRUCT_TEST_PORT")).Will(BeEmpty()).OrFail()
}

func TestHelpRequested(t *testing.T) {
	t.Parallel()
	cfg := &struct {
		Name string `required:"true"`
	}{}
	p, err := New(cfg, Spec{Name: "t"})
	With(t).Verify(err).Will(BeNil()).OrFail()
	With(t).Verify(p.HelpRequested()).Will(EqualTo(false)).OrFail()

	// --help short-circuits before required checks
	With(t).Verify(p.Parse([]string{"--help"}, nil)).Will(BeNil()).OrFail()
	With(t).Verify(p.HelpRequested()).Will(EqualTo(true)).OrFail()

	With(t).Verify(p.Parse([]string{"--name=x"}, nil)).Will(BeNil()).OrFail()
	With(t).Verify(p.HelpRequested()).Will(EqualTo(false)).OrFail()
}
