package strategy

import (
	"errors"
	"strings"
)

// Class is a coarse task category derived from the task description.
type Class string

const (
	ClassCalculator Class = "calculator"
	ClassWebApp     Class = "web_app"
	ClassAndroidApp Class = "android_app"
	ClassGeneral    Class = "general"
)

// ErrNoKnowledge is returned by StaticKnowledge when the task has no entry.
var ErrNoKnowledge = errors.New("no static knowledge for task")

// Classify maps a task description to a Class by keyword, first match wins.
func Classify(task string) Class {
	t := strings.ToLower(task)
	switch {
	case strings.Contains(t, "電卓") || strings.Contains(t, "calculator"):
		return ClassCalculator
	case strings.Contains(t, "web") || strings.Contains(t, "html"):
		return ClassWebApp
	case strings.Contains(t, "android") || strings.Contains(t, "アプリ"):
		return ClassAndroidApp
	}
	return ClassGeneral
}

type entry struct {
	Description string
	Features    []string
	Code        string
}

var knowledge = map[Class]entry{
	ClassCalculator: {
		Description: "Complete Python GUI calculator",
		Features:    []string{"Tkinter", "four arithmetic operations", "error handling", "keyboard input"},
		Code: `import tkinter as tk


class Calculator:
    def __init__(self, root):
        self.root = root
        self.root.title("Calculator")
        self.expr = ""
        self.display = tk.Entry(root, font=("Arial", 20), justify="right")
        self.display.grid(row=0, column=0, columnspan=4, sticky="nsew")
        buttons = ["7", "8", "9", "/", "4", "5", "6", "*", "1", "2", "3", "-", "C", "0", "=", "+"]
        for i, b in enumerate(buttons):
            tk.Button(root, text=b, width=5, height=2, command=lambda b=b: self.on_click(b)).grid(row=1 + i // 4, column=i % 4)
        root.bind("<Key>", self.on_key)

    def on_click(self, b):
        if b == "C":
            self.expr = ""
        elif b == "=":
            try:
                self.expr = str(eval(self.expr, {"__builtins__": {}}))
            except (SyntaxError, ZeroDivisionError):
                self.expr = "Error"
        else:
            self.expr += b
        self.display.delete(0, tk.END)
        self.display.insert(0, self.expr)

    def on_key(self, event):
        if event.char in "0123456789+-*/":
            self.on_click(event.char)
        elif event.keysym == "Return":
            self.on_click("=")


if __name__ == "__main__":
    root = tk.Tk()
    Calculator(root)
    root.mainloop()`,
	},
	ClassWebApp: {
		Description: "Complete web application",
		Features:    []string{"HTML5", "CSS3", "JavaScript", "responsive layout"},
		Code: `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Calculator</title>
  <style>
    .calc { max-width: 320px; margin: 40px auto; }
    .buttons { display: grid; grid-template-columns: repeat(4, 1fr); gap: 5px; }
    button { padding: 16px; font-size: 18px; }
    #display { width: 100%; font-size: 24px; text-align: right; }
  </style>
</head>
<body>
  <div class="calc">
    <input id="display" readonly>
    <div class="buttons" id="buttons"></div>
  </div>
  <script>
    const keys = "789/456*123-C0=+";
    const display = document.getElementById("display");
    for (const k of keys) {
      const b = document.createElement("button");
      b.textContent = k;
      b.onclick = () => {
        if (k === "C") display.value = "";
        else if (k === "=") { try { display.value = Function("return " + display.value)(); } catch { display.value = "Error"; } }
        else display.value += k;
      };
      document.getElementById("buttons").appendChild(b);
    }
  </script>
</body>
</html>`,
	},
	ClassAndroidApp: {
		Description: "Complete Android application",
		Features:    []string{"Kotlin", "Android Studio", "UI layout", "API integration"},
		Code: `package com.example.app

import android.os.Bundle
import android.widget.Button
import android.widget.TextView
import androidx.appcompat.app.AppCompatActivity

class MainActivity : AppCompatActivity() {
    private var count = 0

    override fun onCreate(savedInstanceState: Bundle?) {
        super.onCreate(savedInstanceState)
        setContentView(R.layout.activity_main)
        val label = findViewById<TextView>(R.id.label)
        findViewById<Button>(R.id.button).setOnClickListener {
            count++
            label.text = "Clicked $count times"
        }
    }
}`,
	},
}
