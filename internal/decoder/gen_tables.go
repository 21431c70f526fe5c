//go:build ignore

// gen_tables writes tables.go from the line model described in decoder.go.
//
//	go run gen_tables.go
package main

import (
	"bytes"
	"fmt"
	"go/format"
	"log"
	"math/bits"
	"os"
)

func downsample(b int) int {
	sym := 0
	if bits.OnesCount8(uint8(b>>4)) >= 3 {
		sym |= 2
	}
	if bits.OnesCount8(uint8(b&0x0F)) >= 3 {
		sym |= 1
	}
	return sym
}

// leading returns the length of the run of v at the top of the code and
// whether the rest of the code is the complement.
func leading(code, v int) (int, bool) {
	k := 0
	for k < 8 && (code>>(7-k))&1 == v {
		k++
	}
	for i := k; i < 8; i++ {
		if (code>>(7-i))&1 == v {
			return k, false
		}
	}
	return k, true
}

func classifyStart(code int) string {
	if k, ok := leading(code, 0); ok && k >= 1 && k <= 3 {
		return "core.ModulationMiller"
	}
	if k, ok := leading(code, 1); ok && k >= 3 && k <= 5 {
		return "core.ModulationManchester"
	}
	return "core.ModulationUnknown"
}

func miller(code int) int {
	first := 4 - bits.OnesCount8(uint8(code>>4))
	second := 4 - bits.OnesCount8(uint8(code&0x0F))
	if second > first {
		return 1
	}
	return 0
}

func manchester(code int) int {
	if bits.OnesCount8(uint8(code>>4)) > bits.OnesCount8(uint8(code&0x0F)) {
		return 1
	}
	return 0
}

func main() {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "// Code generated by gen_tables.go; DO NOT EDIT.")
	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "package decoder")
	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, `import "firestige.xyz/nfcsniff/internal/core"`)

	writeBytes(&buf, "downsampleTable", "window byte -> 2-bit symbol", downsample)
	writeBytes(&buf, "millerTable", "ClassCode -> modified Miller bit", miller)
	writeBytes(&buf, "manchesterTable", "ClassCode -> Manchester bit", manchester)

	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "// ClassCode -> start symbol modulation")
	fmt.Fprintln(&buf, "var startTable = [256]core.Modulation{")
	for i := 0; i < 256; i++ {
		if m := classifyStart(i); m != "core.ModulationUnknown" {
			fmt.Fprintf(&buf, "\t0x%02X: %s,\n", i, m)
		}
	}
	fmt.Fprintln(&buf, "}")

	src, err := format.Source(buf.Bytes())
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile("tables.go", src, 0o644); err != nil {
		log.Fatal(err)
	}
}

func writeBytes(buf *bytes.Buffer, name, comment string, f func(int) int) {
	fmt.Fprintln(buf)
	fmt.Fprintf(buf, "// %s\n", comment)
	fmt.Fprintf(buf, "var %s = [256]uint8{\n", name)
	for row := 0; row < 256; row += 16 {
		buf.WriteString("\t")
		for i := row; i < row+16; i++ {
			fmt.Fprintf(buf, "%d,", f(i))
			if i < row+15 {
				buf.WriteString(" ")
			}
		}
		fmt.Fprintf(buf, " // 0x%02X\n", row)
	}
	fmt.Fprintln(buf, "}")
}
