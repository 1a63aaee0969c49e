// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package census

import (
	"bufio"
	"strconv"
	"strings"
)

// Process is one process holding a device file open.
type Process struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
	File string `json:"file"`
}

// Parse reads lsof's default tabular output:
//
//	COMMAND   PID USER   FD   TYPE DEVICE SIZE/OFF NODE NAME
//	Xorg     1843 root  mem    CHR  195,0          1064 /dev/nvidia0
//
// Column one is the command, column two the pid, and the file is the
// last field that is an absolute path (NAME may be followed by
// annotations such as "(deleted)"). The header and rows that do not
// parse are skipped. Rows are returned in output order, not
// deduplicated.
func Parse(output string) []Process {
	var rows []Process
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			// Header line, or a warning lsof printed to stdout.
			continue
		}
		file := ""
		for i := len(fields) - 1; i >= 2; i-- {
			if strings.HasPrefix(fields[i], "/") {
				file = fields[i]
				break
			}
		}
		if file == "" {
			continue
		}
		rows = append(rows, Process{PID: pid, Name: fields[0], File: file})
	}
	return rows
}

// dedupe keeps one record per pid in first-appearance order. The last
// row seen for a pid supplies the record.
func dedupe(rows []Process) []Process {
	index := make(map[int]int, len(rows))
	processes := make([]Process, 0, len(rows))
	for _, row := range rows {
		if position, seen := index[row.PID]; seen {
			processes[position] = row
			continue
		}
		index[row.PID] = len(processes)
		processes = append(processes, row)
	}
	return processes
}
