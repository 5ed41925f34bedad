package shell

import (
	"fmt"
	"strings"
)

// HookPrefix names the functions the hook scripts define.
const HookPrefix = "envoluntary"

// HookScript generates the glue a shell evaluates once at startup, e.g.
//
//	eval "$(envoluntary shell hook bash)"
//
// The glue runs exportCommand before every prompt and applies its output.
// exportCommand is inserted verbatim and must already be quoted for the
// target shell; see ExportCommand.
func HookScript(shellName, exportCommand string) (string, error) {
	if !ValidHookShell(shellName) {
		return "", ShellError(shellName)
	}

	var tmpl string
	switch shellName {
	case Bash:
		tmpl = bashHook
	case Zsh:
		tmpl = zshHook
	case Fish:
		tmpl = fishHook
	case Nushell:
		tmpl = nushellHook
	}
	r := strings.NewReplacer("{{prefix}}", HookPrefix, "{{export}}", exportCommand)
	return r.Replace(tmpl), nil
}

// ExportCommand builds the command line the hook of shellName runs:
// the quoted executable followed by `shell export <shellName>`.
func ExportCommand(shellName, executable string) (string, error) {
	if !ValidHookShell(shellName) {
		return "", ShellError(shellName)
	}
	var exe string
	switch shellName {
	case Fish:
		exe = fishQuote(executable)
	case Nushell:
		exe = "^" + nuQuote(executable)
	default:
		q, err := posixQuote(executable)
		if err != nil {
			return "", fmt.Errorf("quoting %s: %w", executable, err)
		}
		exe = q
	}
	return exe + " shell export " + shellName, nil
}

// nuQuote uses a backtick string when possible, since it has no escapes.
func nuQuote(v string) string {
	if !strings.Contains(v, "`") {
		return "`" + v + "`"
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}

const bashHook = `_{{prefix}}_hook() {
  local previous_exit_status=$?;
  local vars;
  vars="$({{export}})";
  trap -- '' SIGINT;
  eval "$vars";
  trap - SIGINT;
  return $previous_exit_status;
};
if [[ ";${PROMPT_COMMAND[*]:-};" != *";_{{prefix}}_hook;"* ]]; then
  if [[ "$(declare -p PROMPT_COMMAND 2>&1)" == "declare -a"* ]]; then
    PROMPT_COMMAND=(_{{prefix}}_hook "${PROMPT_COMMAND[@]}")
  else
    PROMPT_COMMAND="_{{prefix}}_hook${PROMPT_COMMAND:+;$PROMPT_COMMAND}"
  fi
fi
`

const zshHook = `_{{prefix}}_hook() {
  local vars
  vars="$({{export}})"
  trap -- '' SIGINT
  eval "$vars"
  trap - SIGINT
}
typeset -ag precmd_functions
if (( ! ${precmd_functions[(I)_{{prefix}}_hook]} )); then
  precmd_functions=(_{{prefix}}_hook $precmd_functions)
fi
typeset -ag chpwd_functions
if (( ! ${chpwd_functions[(I)_{{prefix}}_hook]} )); then
  chpwd_functions=(_{{prefix}}_hook $chpwd_functions)
fi
`

const fishHook = `function __{{prefix}}_export_eval --on-event fish_prompt;
  {{export}} | source;

  if test "${{prefix}}_fish_mode" != "disable_arrow";
    function __{{prefix}}_cd_hook --on-variable PWD;
      if test "${{prefix}}_fish_mode" = "eval_after_arrow";
        set -g __{{prefix}}_export_again 0;
      else;
        {{export}} | source;
      end;
    end;
  end;
end;

function __{{prefix}}_export_eval_2 --on-event fish_preexec;
  if set -q __{{prefix}}_export_again;
    set -e __{{prefix}}_export_again;
    {{export}} | source;
    echo;
  end;

  functions --erase __{{prefix}}_cd_hook;
end;
`

const nushellHook = `$env.config.hooks.env_change.PWD = (
  $env.config.hooks.env_change | get --optional PWD | default [] | append { ||
    {{export}} | from json | default {} | load-env
  }
)

$env.config.hooks.pre_execution = (
  $env.config.hooks.pre_execution | append { ||
    {{export}} | from json | default {} | load-env
  }
)
`
