package bridge

// Delimiter marks where user code begins inside the injected user script
const Delimiter = "/*__POPCODESTART__*/"

// MessageTypeError is the envelope type posted for uncaught errors
const MessageTypeError = "org.popcode.error"

// ErrorBridgeScript installs window.onerror so uncaught errors are posted to
// the parent frame as a JSON string envelope. When no error object is
// available the name is taken from the text before the first ": ", keeping
// at most two pieces, and defaults to "Error".
const ErrorBridgeScript = `(function () {
  window.onerror = function (fullMessage, file, line, column, error) {
    var name;
    var message;
    if (error) {
      name = error.name;
      message = error.message;
    } else {
      var pieces = String(fullMessage).split(': ', 2);
      if (pieces.length === 2) {
        name = pieces[0];
        message = pieces[1];
      } else {
        name = 'Error';
        message = fullMessage;
      }
    }
    window.parent.postMessage(JSON.stringify({
      type: '` + MessageTypeError + `',
      error: {name: name, message: message, line: line, column: column}
    }), '*');
  };
}());`

// AlertBridgeScript routes window.alert to the non-blocking window.swal
// provided by a preview-frame library, then hides swal from user code
const AlertBridgeScript = `(function () {
  var nonBlocking = window.swal;
  Object.defineProperty(window, 'alert', {
    value: function (message) {
      nonBlocking(message);
    }
  });
  delete window.swal;
}());`

// UserScript returns the text of the final user script node
func UserScript(source string) string {
	return "\n" + Delimiter + "\n" + source
}
