package runtime

import (
	"path/filepath"
)

// toolchain is one row of the built-in adapter table.
type toolchain struct {
	lang        Language
	display     string
	image       string
	extensions  []string
	sourceFile  string
	entry       func(code string) (string, error)
	compiler    string
	compileArgs func(tool string, l Layout) []string
	interpreter string
	runArgs     func(tool string, l Layout) []string
}

var toolchains = []toolchain{
	{
		lang:        Java,
		display:     "Java",
		image:       "docker.io/library/eclipse-temurin:21-jdk",
		extensions:  []string{".java"},
		entry:       javaEntryFile,
		compiler:    "javac",
		compileArgs: func(tool string, l Layout) []string { return []string{tool, l.Source()} },
		interpreter: "java",
		runArgs: func(tool string, l Layout) []string {
			return []string{tool, "-cp", l.Dir, trimExt(l.SourceFile)}
		},
	},
	{
		lang:        CCpp,
		display:     "C++",
		image:       "docker.io/library/gcc:14",
		extensions:  []string{".cpp", ".cc", ".cxx", ".c"},
		sourceFile:  "main.cpp",
		compiler:    "g++",
		compileArgs: func(tool string, l Layout) []string { return []string{tool, l.Source(), "-o", binaryPath(l)} },
		runArgs:     func(_ string, l Layout) []string { return []string{binaryPath(l)} },
	},
	{
		lang:        Python,
		display:     "Python",
		image:       "docker.io/library/python:3.12-slim",
		extensions:  []string{".py"},
		sourceFile:  "main.py",
		interpreter: "python3",
		runArgs:     interpret,
	},
	{
		lang:        Go,
		display:     "Go",
		image:       "docker.io/library/golang:1.24-alpine",
		extensions:  []string{".go"},
		sourceFile:  "main.go",
		interpreter: "go",
		runArgs:     func(tool string, l Layout) []string { return []string{tool, "run", l.Source()} },
	},
	{
		lang:        Swift,
		display:     "Swift",
		image:       "docker.io/library/swift:5.10",
		extensions:  []string{".swift"},
		sourceFile:  "main.swift",
		interpreter: "swift",
		runArgs:     interpret,
	},
	{
		lang:        Scala,
		display:     "Scala",
		image:       "docker.io/virtuslab/scala-cli:latest",
		extensions:  []string{".scala", ".sc"},
		sourceFile:  "main.scala",
		interpreter: "scala",
		runArgs:     interpret,
	},
	{
		lang:        Ruby,
		display:     "Ruby",
		image:       "docker.io/library/ruby:3.3-slim",
		extensions:  []string{".rb"},
		sourceFile:  "main.rb",
		interpreter: "ruby",
		runArgs:     interpret,
	},
	{
		lang:        Dart,
		display:     "Dart",
		image:       "docker.io/library/dart:stable",
		extensions:  []string{".dart"},
		sourceFile:  "main.dart",
		interpreter: "dart",
		runArgs:     interpret,
	},
}

func interpret(tool string, l Layout) []string { return []string{tool, l.Source()} }

func binaryPath(l Layout) string { return filepath.Join(l.Dir, "main") }

func trimExt(name string) string { return name[:len(name)-len(filepath.Ext(name))] }

func (t toolchain) with(o Override) toolchain {
	if o.Compiler != "" && t.compiler != "" {
		t.compiler = o.Compiler
	}
	if o.Interpreter != "" && t.interpreter != "" {
		t.interpreter = o.Interpreter
	}
	if o.Image != "" {
		t.image = o.Image
	}
	return t
}

func (t toolchain) Name() Language { return t.lang }

func (t toolchain) DisplayName() string { return t.display }

func (t toolchain) Image() string { return t.image }

func (t toolchain) EntryFile(code string) (string, error) {
	if t.entry != nil {
		return t.entry(code)
	}
	return t.sourceFile, nil
}

func (t toolchain) CompileCommand(l Layout) *Command {
	if t.compileArgs == nil {
		return nil
	}
	return &Command{
		Args:  t.compileArgs(t.compiler, l),
		Dir:   l.Dir,
		Image: t.image,
	}
}

func (t toolchain) RunCommand(l Layout) Command {
	return Command{
		Args:  t.runArgs(t.interpreter, l),
		Dir:   l.Dir,
		Stdin: l.Input(),
		Image: t.image,
	}
}
