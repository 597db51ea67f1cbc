package cli_test

import (
	"context"
	"strings"
	"testing"

	"github.com/calvinalkan/eepromkv/internal/cli"
	"github.com/calvinalkan/eepromkv/pkg/i2c"
)

func dev(c *cli.CLI, args ...string) []string {
	return append(args, c.Device()...)
}

// Tests for check.

func Test_Check_Prints_Detected_When_Device_Answers(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun("check", "-b", "0", "-a", "0x54")

	if got, want := stdout, "Device detected"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}
}

func Test_Check_Exits_One_When_Device_Absent(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout, stderr, code := c.Run("check", "-b", "0", "-a", "0x50")

	if code != 1 {
		t.Fatalf("exit=%d, want=1 (stderr=%s)", code, stderr)
	}

	if got, want := stdout, "Device not detected\n"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}

	if stderr != "" {
		t.Fatalf("stderr should be empty, got %q", stderr)
	}
}

func Test_Check_Reports_Permission_Error_When_Probe_Denied(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.Deps.Prober = i2c.Static{Err: i2c.ErrPermission}

	stderr := c.MustFail("check", "-b", "0", "-a", "0x54")

	cli.AssertContains(t, stderr, "permission denied")
}

func Test_Check_Requires_Bus_And_Address(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	cli.AssertContains(t, c.MustFail("check", "-a", "0x54"), "--bus")
	cli.AssertContains(t, c.MustFail("check", "-b", "0"), "--address")
}

// Tests for file.

func Test_File_Write_Then_Read_Roundtrips_Python_Literal(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("board.txt", `{'serial': 'A1', 'rev': 3, 'ok': True, 'note': None}`)

	stdout := c.MustRun(dev(c, "file", "write", "-f", "board.txt")...)
	if got, want := stdout, "File stored"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}

	stdout = c.MustRun(dev(c, "file", "read")...)

	want := `{
  "note": null,
  "ok": true,
  "rev": 3,
  "serial": "A1"
}`
	if stdout != want {
		t.Fatalf("stdout=\n%s\nwant=\n%s", stdout, want)
	}

	if c.Sysfs.Bound(cli.TestBus, cli.TestAddr) {
		t.Fatalf("device left bound after command")
	}
}

func Test_File_Read_Renders_Yaml_When_Requested(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("board.json", `{"serial": "A1"}`)
	c.MustRun(dev(c, "file", "write", "-f", "board.json")...)

	stdout := c.MustRun(dev(c, "file", "read", "--format", "yaml")...)

	if got, want := stdout, "serial: A1"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}
}

func Test_File_Read_Writes_Output_File_When_Output_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("in.json", `{"a": 1}`)
	c.MustRun(dev(c, "file", "write", "-f", "in.json")...)

	stdout := c.MustRun(dev(c, "file", "read", "-o", "out/board.json")...)
	if stdout != "" {
		t.Fatalf("stdout should be empty, got %q", stdout)
	}

	if got, want := c.ReadFile("out/board.json"), "{\n  \"a\": 1\n}\n"; got != want {
		t.Fatalf("output=%q, want=%q", got, want)
	}
}

func Test_File_Read_Prints_Empty_Map_When_Chip_Blank(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	if got, want := c.MustRun(dev(c, "file", "read")...), "{}"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}
}

func Test_File_Write_Fails_When_Literal_Is_Not_Dictionary(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("list.txt", `[1, 2, 3]`)

	stderr := c.MustFail(dev(c, "file", "write", "-f", "list.txt")...)

	cli.AssertContains(t, stderr, "not a dictionary")
}

func Test_File_Write_Fails_When_File_Flag_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail(dev(c, "file", "write")...)

	cli.AssertContains(t, stderr, "-f/--file")
}

func Test_File_Erase_Empties_Stored_File(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("in.json", `{"a": 1, "b": 2}`)
	c.MustRun(dev(c, "file", "write", "-f", "in.json")...)

	c.MustRun(dev(c, "file", "erase")...)

	if got, want := c.MustRun(dev(c, "file", "read")...), "{}"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}

	if got := c.Sysfs.Image(t, cli.TestBus, cli.TestAddr)[0]; got != 0xFF {
		t.Fatalf("byte 0=%#x, want 0xff", got)
	}
}

func Test_File_Fails_When_Type_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail("file", "read", "-t", "24c99", "-b", "0", "-a", "0x54")

	cli.AssertContains(t, stderr, "unknown device type")
}

func Test_File_Fails_When_Device_Absent(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail("file", "read", "-t", "24c64", "-b", "0", "-a", "0x51")

	cli.AssertContains(t, stderr, "no device at address 0x51")
}

func Test_File_Rejects_Unknown_Subcommand(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail(dev(c, "file", "shred")...)

	cli.AssertContains(t, stderr, "unknown subcommand")
}

// Tests for data.

func Test_Data_Put_Then_Get_Returns_Text_Value(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	c.MustRun(dev(c, "data", "put", "-n", "serial", "-v", "SN-0001")...)

	if got, want := c.MustRun(dev(c, "data", "get", "-n", "serial")...), "SN-0001"; got != want {
		t.Fatalf("get=%q, want=%q", got, want)
	}
}

func Test_Data_Put_Stores_Text_Unless_Literal(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	c.MustRun(dev(c, "data", "put", "-n", "text", "-v", "5")...)
	c.MustRun(dev(c, "data", "put", "-n", "num", "-v", "5", "--literal")...)
	c.MustRun(dev(c, "data", "put", "-n", "list", "-v", "[1, 'x', None]", "--literal")...)

	stdout := c.MustRun(dev(c, "file", "read")...)

	cli.AssertContains(t, stdout, `"text": "5"`)
	cli.AssertContains(t, stdout, `"num": 5`)

	if got, want := c.MustRun(dev(c, "data", "get", "-n", "list")...), `[1,"x",null]`; got != want {
		t.Fatalf("get=%q, want=%q", got, want)
	}
}

func Test_Data_Put_Keeps_Other_Keys(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("in.json", `{"a": 1}`)
	c.MustRun(dev(c, "file", "write", "-f", "in.json")...)

	c.MustRun(dev(c, "data", "put", "-n", "b", "-v", "2", "--literal")...)

	if got, want := c.MustRun(dev(c, "file", "read")...), "{\n  \"a\": 1,\n  \"b\": 2\n}"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}
}

func Test_Data_Get_Fails_When_Key_Absent(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	_, stderr, code := c.Run(dev(c, "data", "get", "-n", "missing")...)

	if got, want := code, 1; got != want {
		t.Fatalf("exit=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stderr, "key not found: missing")
	cli.AssertNotContains(t, stderr, "None")
}

func Test_Data_Help_Documents_Missing_Key_Exit_Code(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun("data", "--help")

	cli.AssertContains(t, stdout, "get of a missing key prints \"key not found\" to stderr and\nexits 1")
}

func Test_Data_Put_Fails_When_Value_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail(dev(c, "data", "put", "-n", "k")...)

	cli.AssertContains(t, stderr, "-v/--value")
}

func Test_Data_Put_Stores_Empty_String_When_Value_Empty(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	c.MustRun(dev(c, "data", "put", "-n", "k", "-v", "")...)

	cli.AssertContains(t, c.MustRun(dev(c, "file", "read")...), `"k": ""`)
}

func Test_Data_Delete_Removes_Key(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun(dev(c, "data", "put", "-n", "k", "-v", "v")...)

	c.MustRun(dev(c, "data", "delete", "-n", "k")...)

	c.MustFail(dev(c, "data", "get", "-n", "k")...)
	cli.AssertContains(t, c.MustFail(dev(c, "data", "delete", "-n", "k")...), "key not found")
}

// Tests for raw.

func Test_Raw_Write_Then_Read_Shows_Bytes(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun(dev(c, "raw", "write", "--offset", "0x100", "--hex", "48 69 21")...)
	if got, want := stdout, "Wrote 3 bytes at 0x100"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}

	stdout = c.MustRun(dev(c, "raw", "read", "--offset", "0x100", "--length", "3")...)

	if got, want := stdout, "00000100  48 69 21"+strings.Repeat(" ", 42)+"|Hi!|"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}
}

func Test_Raw_Read_Fails_When_Range_Exceeds_Device(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail(dev(c, "raw", "read", "--offset", "8190", "--length", "4")...)

	cli.AssertContains(t, stderr, "out of bounds")
}

func Test_Raw_Write_Over_Header_Is_Seen_By_File_Read(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	// {"a": "b"} encoded by hand.
	c.MustRun(dev(c, "raw", "write", "--hex", "a1616161 62")...)

	if got, want := c.MustRun(dev(c, "file", "read")...), "{\n  \"a\": \"b\"\n}"; got != want {
		t.Fatalf("stdout=%q, want=%q", got, want)
	}
}

// Tests for shell.

func Test_Shell_Runs_Piped_Commands(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	input := "put serial 'A1'\nput rev 3\nget serial\nkeys\ndel rev\nkeys\nbogus\nexit\n"

	stdout, stderr, code := c.RunWithInput(input, dev(c, "shell")...)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}

	want := "ok\nok\nA1\nrev\nserial\nok\nserial\n"
	if stdout != want {
		t.Fatalf("stdout=%q, want=%q", stdout, want)
	}

	cli.AssertContains(t, stderr, "unknown command: bogus")

	if got, want := c.MustRun(dev(c, "data", "get", "-n", "serial")...), "A1"; got != want {
		t.Fatalf("persisted serial=%q, want=%q", got, want)
	}
}

func Test_Shell_Exits_When_Input_Ends(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun(dev(c, "shell")...)
	if stdout != "" {
		t.Fatalf("stdout=%q, want empty", stdout)
	}
}

// Tests for dispatch and configuration.

func Test_Run_Prints_Usage_When_No_Command(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun()

	cli.AssertContains(t, stdout, "Usage: eepromkv")
	cli.AssertContains(t, stdout, "print-config")
}

func Test_Run_Fails_When_Command_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail("frobnicate")

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
}

func Test_Command_Help_Shows_Flags(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun("data", "--help")

	cli.AssertContains(t, stdout, "Usage: eepromkv data")
	cli.AssertContains(t, stdout, "--literal")
}

func Test_Device_Flags_Default_From_Project_Config(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".eepromkv.json", `{
		// the board eeprom
		"type": "24c64",
		"bus": 0,
		"address": "0x54",
	}`)

	c.MustRun("data", "put", "-n", "k", "-v", "v")

	if got, want := c.MustRun("data", "get", "-n", "k"), "v"; got != want {
		t.Fatalf("get=%q, want=%q", got, want)
	}
}

func Test_Print_Config_Shows_Sources(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".eepromkv.json", `{"type": "24c02", "prober": "none"}`)

	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "type=24c02")
	cli.AssertContains(t, stdout, "prober=none")
	cli.AssertContains(t, stdout, "sysfs_dir="+c.Sysfs.Root())
	cli.AssertContains(t, stdout, "env=SYSFS_I2C_DEVICES_DIR")
	cli.AssertContains(t, stdout, "project_config=")
}

func Test_Config_Invalid_Value_Fails_Before_Command(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".eepromkv.json", `{"address": "0x99"}`)

	stderr := c.MustFail("print-config")

	cli.AssertContains(t, stderr, "invalid config")
}

func Test_Global_Log_Level_Flag_Enables_Debug_Output(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	_, stderr, code := c.Run(append([]string{"--log-level", "debug"}, dev(c, "file", "read")...)...)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}

	cli.AssertContains(t, stderr, "created i2c client")
	cli.AssertContains(t, stderr, "deleted i2c client")
}

func Test_Prober_Dependency_Is_Used_For_Presence(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	var probed []int

	c.Deps.Prober = i2c.ProberFunc(func(_ context.Context, _ int, addr int) (bool, error) {
		probed = append(probed, addr)

		return false, nil
	})

	c.MustFail(dev(c, "file", "read")...)

	if len(probed) != 1 || probed[0] != cli.TestAddr {
		t.Fatalf("probed=%v, want [%d]", probed, cli.TestAddr)
	}
}
